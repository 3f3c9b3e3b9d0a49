package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// Error kinds surfaced to boundary callers.
const (
	KindUnauthenticated = "unauthenticated"
	KindInvalidArgument = "invalid_argument"
	KindNotFound        = "not_found"
	KindInternal        = "internal"
	KindUnavailable     = "unavailable"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func statusForKind(kind string) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(kind))
	if err := json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Kind: kind, Message: message}}); err != nil {
		log.Printf("write error json: %v", err)
	}
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json: %v", err)
	}
}
