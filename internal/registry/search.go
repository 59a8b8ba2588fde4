package registry

import (
	"strconv"
	"strings"

	"device-inventory-api/internal/models"
)

// Search keeps the devices whose uid, type, model or status contains query,
// ignoring case. A blank query returns devices unchanged.
func Search(devices []models.Device, query string) []models.Device {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return devices
	}

	out := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		if matches(d, q) {
			out = append(out, d)
		}
	}
	return out
}

func matches(d models.Device, q string) bool {
	fields := [...]string{
		strconv.FormatInt(d.UID, 10),
		string(d.Type),
		d.Model,
		string(d.Status),
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
