package api

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/odnarb/bigfoot-map/internal/service"
)

type contextKey string

const (
	UserContextKey contextKey = "userContext"
	RequestIDKey   contextKey = "requestID"
)

// HTTP header constants
const (
	AuthorizationHeader = "Authorization"
	BearerScheme        = "bearer"
	ClientIDHeader      = "X-Client-Id"
	RequestIDHeader     = "X-Request-Id"
)

// Auth provider names
const (
	ProviderLocalJWT = "local-jwt"
)

// Error codes
const (
	CodeInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	CodeTokenInvalid        = "AUTH_TOKEN_INVALID"
	CodeMissingToken        = "AUTH_MISSING_TOKEN"
	CodeProviderInvalid     = "AUTH_PROVIDER_INVALID"
	CodeLoginFieldsRequired = "AUTH_LOGIN_FIELDS_REQUIRED"
	CodeTokenSigningFailed  = "AUTH_TOKEN_SIGNING_FAILED"
	CodeRequestBodyInvalid  = "REQUEST_BODY_INVALID"
	CodeRateLimited         = "RATE_LIMITED"
)

// Public messages
const (
	MsgInvalidCredentials  = "Invalid username or password."
	MsgTokenInvalid        = "Authentication is required for this action."
	MsgMissingToken        = "Please sign in to continue."
	MsgProviderInvalid     = "Authentication provider is not configured correctly."
	MsgLoginFieldsRequired = "Username and password are required."
	MsgTokenSigningFailed  = "Could not sign you in right now. Please try again."
	MsgRequestBodyInvalid  = "Request body must be valid JSON."
	MsgRateLimited         = "Too many requests. Please slow down and try again."
	MsgRouteNotFound       = "Route not found."
)

// Log message constants
const (
	LogJWTValidationFailed = "JWT token validation failed"
	LogRequestFailed       = "Request failed"
	LogRequestServed       = "Request served"
)

// tokenClaims is the payload of a local session token.
type tokenClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) userContext() service.UserContext {
	return service.UserContext{
		UserID:   c.UserID,
		Username: c.Username,
		Role:     c.Role,
	}
}

// Session is the result of a successful login.
type Session struct {
	Token string              `json:"token"`
	User  service.UserContext `json:"user"`
}
