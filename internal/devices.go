package internal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"device-inventory-api/internal/auth"
	"device-inventory-api/internal/models"

	"github.com/go-chi/chi/v5"
)

// listDevices handles device listing with search, sorting and pagination
func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	devices, err := s.Registry.Search(r.Context(), params.q)
	if err != nil {
		sendRegistryError(w, r, err)
		return
	}

	sortDevices(devices, params.sort)
	start, end := params.window(len(devices))
	page := s.Lookup.DecorateDevices(r.Context(), devices[start:end])

	sendListResponse(w, page, len(devices), params)
}

// getDevice handles getting a single device by uid
func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	uid, ok := parseUID(w, r)
	if !ok {
		return
	}

	d, err := s.Registry.Get(r.Context(), uid)
	if err != nil {
		sendRegistryError(w, r, err)
		return
	}

	decorated := s.Lookup.DecorateDevices(r.Context(), []models.Device{*d})
	sendJSON(w, http.StatusOK, decorated[0])
}

// createDevice handles creating a new device
func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid JSON body", "INVALID_JSON", http.StatusBadRequest)
		return
	}

	d, err := s.Registry.Create(r.Context(), auth.UserIDFromContext(r.Context()), req)
	if err != nil {
		sendRegistryError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, d)
}

// updateDevice handles updating the mutable fields of a device.
// type, brand and model keys in the body are ignored.
func (s *Server) updateDevice(w http.ResponseWriter, r *http.Request) {
	uid, ok := parseUID(w, r)
	if !ok {
		return
	}

	var req models.UpdateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid JSON body", "INVALID_JSON", http.StatusBadRequest)
		return
	}

	d, err := s.Registry.Update(r.Context(), auth.UserIDFromContext(r.Context()), uid, req)
	if err != nil {
		sendRegistryError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, d)
}

// deleteDevice handles deleting a device
func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	uid, ok := parseUID(w, r)
	if !ok {
		return
	}

	if _, err := s.Registry.Delete(r.Context(), auth.UserIDFromContext(r.Context()), uid); err != nil {
		sendRegistryError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseUID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	uid, err := strconv.ParseInt(chi.URLParam(r, "uid"), 10, 64)
	if err != nil || uid <= 0 {
		sendErrorResponse(w, "uid must be a positive integer", "INVALID_UID", http.StatusBadRequest)
		return 0, false
	}
	return uid, true
}

// deviceTypesResponse lists the accepted enumerations for clients building forms
type deviceTypesResponse struct {
	Types    []models.DeviceType   `json:"types"`
	Statuses []models.DeviceStatus `json:"statuses"`
	Search   []string              `json:"search_fields"`
}

// getDeviceOptions returns the accepted device types and statuses
func (s *Server) getDeviceOptions(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, deviceTypesResponse{
		Types:    models.ValidDeviceTypes,
		Statuses: models.ValidStatuses,
		Search:   []string{"uid", "type", "model", "status"},
	})
}
