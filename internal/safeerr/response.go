package safeerr

import "net/http"

const (
	CodeInternal       = "INTERNAL_ERROR"
	MessageInternal    = "Something went wrong. Please try again."
	CodeRouteNotFound  = "ROUTE_NOT_FOUND"
	MessageRouteAbsent = "Route was not found."
)

// Body is the JSON shape returned to clients for any failure.
type Body struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// Response is the client-facing projection of an error.
type Response struct {
	Status int
	Body   Body
	// LogFields holds the private details for the error log line.
	LogFields map[string]any
}

// ToResponse converts any error into a safe client response. Errors that
// are not typed become a generic 500 so no internal text leaks out.
func ToResponse(err error) Response {
	safe, ok := As(err)
	if !ok {
		fields := map[string]any{}
		if err != nil {
			fields["error"] = err.Error()
		}
		return Response{
			Status:    http.StatusInternalServerError,
			Body:      Body{Message: MessageInternal, ErrorCode: CodeInternal},
			LogFields: fields,
		}
	}

	fields := make(map[string]any, len(safe.Details)+2)
	for k, v := range safe.Details {
		fields[k] = v
	}
	fields["kind"] = safe.Kind.String()
	if safe.Err != nil {
		fields["cause"] = safe.Err.Error()
	}

	return Response{
		Status:    safe.Status(),
		Body:      Body{Message: safe.Message, ErrorCode: safe.Code},
		LogFields: fields,
	}
}
