package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rohits-web03/esigned/internal/apperr"
)

type Payload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// ErrorType is a machine readable discriminant set on some failures.
	ErrorType string `json:"errorType,omitempty"`
	Data      any    `json:"data,omitempty"`
	// Extra keys are written at the top level next to success and message.
	// They never replace the envelope keys.
	Extra map[string]any `json:"-"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	type envelope Payload
	if len(p.Extra) == 0 {
		return json.Marshal(envelope(p))
	}

	body := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		body[k] = v
	}
	body["success"] = p.Success
	body["message"] = p.Message
	if p.ErrorType != "" {
		body["errorType"] = p.ErrorType
	} else {
		delete(body, "errorType")
	}
	if p.Data != nil {
		body["data"] = p.Data
	} else {
		delete(body, "data")
	}
	return json.Marshal(body)
}

// JSONResponse sends a JSON response with given status, success flag, and payload
func JSONResponse(w http.ResponseWriter, status int, payload Payload) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// JSONError writes err in the standard envelope and returns the status used.
// Error details become top-level keys of the body. Errors outside the apperr
// taxonomy become a generic 500.
func JSONError(w http.ResponseWriter, err error) int {
	e, ok := apperr.As(err)
	if !ok {
		JSONResponse(w, http.StatusInternalServerError, Payload{Message: "Internal server error"})
		return http.StatusInternalServerError
	}

	status := e.Status()
	JSONResponse(w, status, Payload{Message: e.Message, ErrorType: e.Type, Extra: e.Details})
	return status
}
