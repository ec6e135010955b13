// Package webutil holds the small JSON response helpers shared by the
// accounts and room-history APIs.
package webutil

import (
	"encoding/json"
	"net/http"

	"github.com/NuvandaPV/instant/internal/responses"
)

// Envelope is the top-level shape of every JSON HTTP response this
// server returns, success or failure.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HandleSuccess writes data as a 200 response wrapped in Envelope.
func HandleSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

// HandleError inspects err for a responses.APIError and writes its
// status code and message; anything else is reported as a 500 with a
// generic message, never leaking internal error text to the caller.
func HandleError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errMsg := "internal server error"

	if apiErr, ok := err.(responses.APIError); ok {
		statusCode = apiErr.StatusCode()
		errMsg = apiErr.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Envelope{Success: false, Error: errMsg})
}
