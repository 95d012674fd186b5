package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound marks a missing episode or chunk set.
var ErrNotFound = errors.New("not found")

// ErrInvalid marks a request the caller must fix (bad chunk list, bad id).
var ErrInvalid = errors.New("invalid request")

// UploadError wraps a blob backend failure during a put.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// RetrievalError wraps a blob backend failure during a get. NotFound
// distinguishes an unknown file id from a backend outage.
type RetrievalError struct {
	FileID   string
	NotFound bool
	Err      error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s: %v", e.FileID, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ErrorResponse is the structured body returned for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Status maps an error to an HTTP status code and a stable category.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest, "invalid_request"
	}
	var ue *UploadError
	if errors.As(err, &ue) {
		return http.StatusBadGateway, "upload_failed"
	}
	var re *RetrievalError
	if errors.As(err, &re) {
		if re.NotFound {
			return http.StatusNotFound, "not_found"
		}
		return http.StatusBadGateway, "retrieval_failed"
	}
	return http.StatusInternalServerError, "internal"
}

// WriteJSON writes a structured error body with the given status.
func WriteJSON(w http.ResponseWriter, status int, category, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: category, Message: message})
}

// Write maps err onto the taxonomy and writes the structured body.
// Internal failures get a generic message so backend details never
// reach the client.
func Write(w http.ResponseWriter, err error) {
	status, category := Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	WriteJSON(w, status, category, msg)
}
