package internal

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"device-inventory-api/internal/models"
)

// listParams holds common query parameters for list endpoints
type listParams struct {
	limit  int
	offset int
	q      string
	sort   string
}

// parseListParams parses limit, offset, q, and sort from the request
// Defaults: limit=50 (max 200), offset=0
func parseListParams(r *http.Request) listParams {
	values := r.URL.Query()

	limit := 50
	if s := strings.TrimSpace(values.Get("limit")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			if v > 200 {
				v = 200
			}
			limit = v
		}
	}

	offset := 0
	if s := strings.TrimSpace(values.Get("offset")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	return listParams{
		limit:  limit,
		offset: offset,
		q:      strings.TrimSpace(values.Get("q")),
		sort:   strings.TrimSpace(values.Get("sort")),
	}
}

// window returns the slice bounds of the requested page over n items
func (p listParams) window(n int) (int, int) {
	start := p.offset
	if start > n {
		start = n
	}
	end := start + p.limit
	if end > n {
		end = n
	}
	return start, end
}

// sortKey is one comma-separated element of a sort parameter
type sortKey struct {
	field string
	desc  bool
}

// buildSortKeys parses a sort parameter against a whitelist of allowed keys.
// Input sort is comma-separated; prefix with '-' for DESC. Unknown keys are
// dropped and an empty result falls back to fallback ascending.
func buildSortKeys(sortParam string, allowed map[string]bool, fallback string) []sortKey {
	keys := []sortKey{}
	for _, raw := range strings.Split(sortParam, ",") {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		desc := false
		if strings.HasPrefix(s, "-") {
			desc = true
			s = strings.TrimPrefix(s, "-")
		}
		if !allowed[s] {
			continue
		}
		keys = append(keys, sortKey{field: s, desc: desc})
	}
	if len(keys) == 0 {
		return []sortKey{{field: fallback}}
	}
	return keys
}

var deviceSortFields = map[string]bool{
	"uid":    true,
	"type":   true,
	"brand":  true,
	"model":  true,
	"status": true,
}

func compareDevices(a, b models.Device, field string) int {
	switch field {
	case "type":
		return strings.Compare(string(a.Type), string(b.Type))
	case "brand":
		return strings.Compare(strings.ToLower(a.Brand), strings.ToLower(b.Brand))
	case "model":
		return strings.Compare(strings.ToLower(a.Model), strings.ToLower(b.Model))
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	default:
		return compareInt64(a.UID, b.UID)
	}
}

// sortDevices orders devices in place; uid breaks ties
func sortDevices(devices []models.Device, sortParam string) {
	keys := buildSortKeys(sortParam, deviceSortFields, "uid")
	sort.SliceStable(devices, func(i, j int) bool {
		for _, k := range keys {
			c := compareDevices(devices[i], devices[j], k.field)
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return devices[i].UID < devices[j].UID
	})
}

var logSortFields = map[string]bool{
	"timestamp":  true,
	"device_uid": true,
	"operation":  true,
}

func compareLogs(a, b models.LogEntry, field string) int {
	switch field {
	case "device_uid":
		return compareInt64(a.DeviceUID, b.DeviceUID)
	case "operation":
		return strings.Compare(string(a.Operation), string(b.Operation))
	default:
		// entries written in the same millisecond keep their insertion order
		if c := compareInt64(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return compareInt64(a.ID, b.ID)
	}
}

// sortLogs orders entries in place; id breaks ties
func sortLogs(entries []models.LogEntry, sortParam string) {
	keys := buildSortKeys(sortParam, logSortFields, "timestamp")
	sort.SliceStable(entries, func(i, j int) bool {
		for _, k := range keys {
			c := compareLogs(entries[i], entries[j], k.field)
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return entries[i].ID < entries[j].ID
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
