package httputil

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorBody is the stable error envelope returned by every
// authorization-layer failure. Details are optional and carry
// code-specific context (required vs held roles, quota usage).
type ErrorBody struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps ErrorBody under the "error" key.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorCode writes the stable error envelope for code with an
// HTTP status derived from the taxonomy.
func WriteErrorCode(w http.ResponseWriter, code ErrorCode, message string) {
	WriteErrorDetails(w, code, message, nil)
}

// WriteErrorDetails writes the stable error envelope including
// code-specific details.
func WriteErrorDetails(w http.ResponseWriter, code ErrorCode, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(code))
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorBody{
			Code:      code,
			Message:   message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Details:   details,
		},
	})
}

// WriteInternalError surfaces a generic message to the client. The
// underlying error is the caller's to log; it never reaches the
// response body.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorCode(w, CodeInternalError, "internal server error")
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
