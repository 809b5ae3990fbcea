package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/odnarb/bigfoot-map/pkg/zerolog_config"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 2 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response body")
	}
}

// writeError renders err as {message, errorCode}. Private details only
// reach the log, with sensitive keys redacted.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := safeerr.ToResponse(err)

	event := log.Warn()
	if resp.Status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", resp.Status).
		Str("errorCode", resp.Body.ErrorCode).
		Fields(zerolog_config.SanitizeFields(resp.LogFields)).
		Msg(LogRequestFailed)

	writeJSON(w, resp.Status, resp.Body)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return safeerr.Wrap(err, safeerr.KindValidation, CodeRequestBodyInvalid, MsgRequestBodyInvalid, nil)
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, safeerr.NotFound(safeerr.CodeRouteNotFound, MsgRouteNotFound, map[string]any{"method": r.Method}))
}

func rateLimitedHandler(w http.ResponseWriter, r *http.Request) {
	log.Warn().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remoteAddr", r.RemoteAddr).
		Msg("Rate limit exceeded")
	writeJSON(w, http.StatusTooManyRequests, safeerr.Body{Message: MsgRateLimited, ErrorCode: CodeRateLimited})
}
