package internal

import (
	"net/http"
	"strconv"
	"strings"

	"device-inventory-api/internal/models"
)

// listLogs handles audit log listing with filters, sorting and pagination
func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	values := r.URL.Query()

	filter := models.LogFilter{
		Operation: strings.TrimSpace(values.Get("operation")),
	}
	if raw := strings.TrimSpace(values.Get("device_uid")); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || uid <= 0 {
			sendErrorResponse(w, "device_uid must be a positive integer", "INVALID_DEVICE_UID", http.StatusBadRequest)
			return
		}
		filter.DeviceUID = uid
	}

	entries, err := s.Registry.Logs(r.Context(), filter)
	if err != nil {
		sendRegistryError(w, r, err)
		return
	}

	sortLogs(entries, params.sort)
	start, end := params.window(len(entries))
	page := s.Lookup.DecorateLogs(r.Context(), entries[start:end])

	sendListResponse(w, page, len(entries), params)
}
