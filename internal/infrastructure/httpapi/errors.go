package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"api-tester/internal/domain"
)

type apiErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	if code == "" {
		code = http.StatusText(status)
	}
	writeJSON(w, status, apiErrorBody{Error: message, Code: code})
}

// writeDomainError maps a failure from the engine, adapter or relay onto an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeError(w, statusFor(de.Kind), string(de.Kind), de.Error())
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindBadRequest, domain.KindUnsupportedMethod, domain.KindInvalidURL:
		return http.StatusBadRequest
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
