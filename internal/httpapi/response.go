package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ApiResponse is the envelope every handler response is wrapped in,
// per spec §6: {success, message, data}.
type ApiResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("httpapi: encode response failed")
	}
}

func writeOK[T any](w http.ResponseWriter, data T) {
	writeJSON(w, http.StatusOK, ApiResponse[T]{Success: true, Message: "ok", Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := classify(err)
	if apiErr.Kind == Internal {
		log.Error().Err(err).Msg("httpapi: internal error")
	}
	writeJSON(w, apiErr.Kind.httpStatus(), ApiResponse[any]{Success: false, Message: apiErr.Error(), Data: nil})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return validationErr("request body is required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return newErr(Validation, "invalid request body", err)
	}
	return nil
}
