package internal

import (
	"encoding/json"
	"errors"
	"net/http"

	"device-inventory-api/internal/auth"
	"device-inventory-api/internal/registry"

	"github.com/rs/zerolog"
)

// listResponse is the envelope of every list endpoint
type listResponse struct {
	Data interface{} `json:"data"`
	Meta listMeta    `json:"meta"`
}

type listMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func sendListResponse(w http.ResponseWriter, data interface{}, total int, params listParams) {
	sendJSON(w, http.StatusOK, listResponse{
		Data: data,
		Meta: listMeta{Total: total, Limit: params.limit, Offset: params.offset},
	})
}

// sendErrorResponse writes the same {error, code} body the auth middleware uses
func sendErrorResponse(w http.ResponseWriter, message, code string, status int) {
	sendJSON(w, status, auth.ErrorResponse{Error: message, Code: code})
}

// sendRegistryError maps a registry failure to its HTTP status
func sendRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	var regErr *registry.Error
	if !errors.As(err, &regErr) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unexpected registry error")
		sendErrorResponse(w, "Internal error", string(registry.CodeRemoteFailure), http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch regErr.Kind {
	case registry.KindUnauthenticated:
		status = http.StatusUnauthorized
	case registry.KindValidation:
		status = http.StatusBadRequest
	case registry.KindNotFound:
		status = http.StatusNotFound
	}

	message := regErr.Message
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("registry operation failed")
	}
	sendErrorResponse(w, message, string(regErr.Code), status)
}
