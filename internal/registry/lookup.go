package registry

import (
	"context"
	"errors"

	"device-inventory-api/internal/models"
	"device-inventory-api/internal/store"

	"github.com/rs/zerolog"
)

// Lookup resolves user ids referenced by devices and log entries. Records
// may outlive the user they point at, so a missing user is not an error.
type Lookup struct {
	users  store.Users
	logger zerolog.Logger
}

// NewLookup creates a Lookup over users.
func NewLookup(users store.Users, logger zerolog.Logger) *Lookup {
	return &Lookup{users: users, logger: logger}
}

// DisplayName returns the name to show for userID.
func (l *Lookup) DisplayName(ctx context.Context, userID string) (string, bool) {
	u, ok := l.user(ctx, userID)
	if !ok {
		return "", false
	}
	return u.GetDisplayName(), true
}

// Role returns the type of userID.
func (l *Lookup) Role(ctx context.Context, userID string) (string, bool) {
	u, ok := l.user(ctx, userID)
	if !ok {
		return "", false
	}
	return u.Type, true
}

// DecorateDevices attaches assignee names to devices.
func (l *Lookup) DecorateDevices(ctx context.Context, devices []models.Device) []models.DeviceWithNames {
	names := make(map[string]*string)
	out := make([]models.DeviceWithNames, 0, len(devices))
	for _, d := range devices {
		item := models.DeviceWithNames{Device: d}
		if d.AssignedTo != nil {
			item.AssignedToName = l.cachedName(ctx, names, *d.AssignedTo)
		}
		out = append(out, item)
	}
	return out
}

// DecorateLogs attaches the name of whoever performed each entry.
func (l *Lookup) DecorateLogs(ctx context.Context, entries []models.LogEntry) []models.LogEntryWithNames {
	names := make(map[string]*string)
	out := make([]models.LogEntryWithNames, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.LogEntryWithNames{
			LogEntry:        e,
			PerformedByName: l.cachedName(ctx, names, e.PerformedBy),
		})
	}
	return out
}

func (l *Lookup) cachedName(ctx context.Context, names map[string]*string, id string) *string {
	if name, seen := names[id]; seen {
		return name
	}
	var name *string
	if n, ok := l.DisplayName(ctx, id); ok {
		name = &n
	}
	names[id] = name
	return name
}

func (l *Lookup) user(ctx context.Context, userID string) (*models.User, bool) {
	if userID == "" {
		return nil, false
	}
	u, err := l.users.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.logger.Warn().Err(err).Str("user_id", userID).Msg("user lookup failed")
		}
		return nil, false
	}
	return u, true
}
