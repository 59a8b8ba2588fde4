package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"device-inventory-api/internal/models"
)

// Memory is an in-process Store. Transactions run against a staged copy of
// the collections which replaces the live copy on commit.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	users     map[string]models.User
	devices   map[int64]models.Device
	logs      []models.LogEntry
	lastUID   int64
	lastLogID int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: &memData{
		users:   make(map[string]models.User),
		devices: make(map[int64]models.Device),
	}}
}

func (d *memData) clone() *memData {
	out := &memData{
		users:     make(map[string]models.User, len(d.users)),
		devices:   make(map[int64]models.Device, len(d.devices)),
		logs:      make([]models.LogEntry, len(d.logs)),
		lastUID:   d.lastUID,
		lastLogID: d.lastLogID,
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	for k, v := range d.devices {
		out.devices[k] = v.Clone()
	}
	copy(out.logs, d.logs)
	return out
}

// WithTx runs fn against a staged copy while holding the store lock.
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := m.data.clone()
	if err := fn(ctx, &memTx{data: staged}); err != nil {
		return err
	}
	m.data = staged
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

func (m *Memory) view() *memTx {
	return &memTx{data: m.data}
}

func (m *Memory) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetUser(ctx, id)
}

func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetUserByUsername(ctx, username)
}

func (m *Memory) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListUsers(ctx)
}

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreateUser(ctx, u)
}

func (m *Memory) UpdateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateUser(ctx, u)
}

func (m *Memory) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SetUserPassword(ctx, id, passwordHash)
}

func (m *Memory) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteUser(ctx, id)
}

func (m *Memory) NextDeviceUID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().NextDeviceUID(ctx)
}

func (m *Memory) InsertDevice(ctx context.Context, d models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertDevice(ctx, d)
}

func (m *Memory) GetDevice(ctx context.Context, uid int64) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetDevice(ctx, uid)
}

func (m *Memory) UpdateDevice(ctx context.Context, d models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateDevice(ctx, d)
}

func (m *Memory) DeleteDevice(ctx context.Context, uid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteDevice(ctx, uid)
}

func (m *Memory) ListDevices(ctx context.Context) ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListDevices(ctx)
}

func (m *Memory) AppendLog(ctx context.Context, e *models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().AppendLog(ctx, e)
}

func (m *Memory) ListLogs(ctx context.Context, f models.LogFilter) ([]models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListLogs(ctx, f)
}

// memTx operates on memData without locking; callers hold Memory.mu.
type memTx struct {
	data *memData
}

func (t *memTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, ok := t.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, u := range t.data.users {
		if u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(t.data.users))
	for _, u := range t.data.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (t *memTx) CreateUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.data.users[u.ID]; ok {
		return ErrConflict
	}
	for _, existing := range t.data.users {
		if existing.Username == u.Username || (u.Email != "" && existing.Email == u.Email) {
			return ErrConflict
		}
	}
	t.data.users[u.ID] = *u
	return nil
}

func (t *memTx) UpdateUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, ok := t.data.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	for id, existing := range t.data.users {
		if id == u.ID {
			continue
		}
		if existing.Username == u.Username || (u.Email != "" && existing.Email == u.Email) {
			return ErrConflict
		}
	}
	current.Username = u.Username
	current.Email = u.Email
	current.Type = u.Type
	t.data.users[u.ID] = current
	return nil
}

func (t *memTx) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.data.users[id]; !ok {
		return ErrNotFound
	}
	delete(t.data.users, id)
	return nil
}

func (t *memTx) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, ok := t.data.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	t.data.users[id] = u
	return nil
}

func (t *memTx) NextDeviceUID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.data.lastUID++
	return t.data.lastUID, nil
}

func (t *memTx) InsertDevice(ctx context.Context, d models.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.data.devices[d.UID]; ok {
		return ErrConflict
	}
	t.data.devices[d.UID] = d.Clone()
	return nil
}

func (t *memTx) GetDevice(ctx context.Context, uid int64) (*models.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := t.data.devices[uid]
	if !ok {
		return nil, ErrNotFound
	}
	out := d.Clone()
	return &out, nil
}

func (t *memTx) UpdateDevice(ctx context.Context, d models.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	existing, ok := t.data.devices[d.UID]
	if !ok {
		return ErrNotFound
	}
	next := d.Clone()
	existing.Description = next.Description
	existing.SerialNumber = next.SerialNumber
	existing.AssignedTo = next.AssignedTo
	existing.Status = next.Status
	t.data.devices[d.UID] = existing
	return nil
}

func (t *memTx) DeleteDevice(ctx context.Context, uid int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.data.devices[uid]; !ok {
		return ErrNotFound
	}
	delete(t.data.devices, uid)
	return nil
}

func (t *memTx) ListDevices(ctx context.Context) ([]models.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	devices := make([]models.Device, 0, len(t.data.devices))
	for _, d := range t.data.devices {
		devices = append(devices, d.Clone())
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].UID < devices[j].UID })
	return devices, nil
}

func (t *memTx) AppendLog(ctx context.Context, e *models.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.data.lastLogID++
	e.ID = t.data.lastLogID

	stored := *e
	stored.Details = make(models.LogDetails, len(e.Details))
	for k, v := range e.Details {
		stored.Details[k] = v
	}
	stored.ChangedFields = append([]string(nil), e.ChangedFields...)
	t.data.logs = append(t.data.logs, stored)
	return nil
}

func (t *memTx) ListLogs(ctx context.Context, f models.LogFilter) ([]models.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	op := strings.ToLower(strings.TrimSpace(f.Operation))
	logs := make([]models.LogEntry, 0, len(t.data.logs))
	for _, e := range t.data.logs {
		if op != "" && !strings.Contains(strings.ToLower(string(e.Operation)), op) {
			continue
		}
		if f.DeviceUID != 0 && e.DeviceUID != f.DeviceUID {
			continue
		}
		logs = append(logs, e)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].Timestamp == logs[j].Timestamp {
			return logs[i].ID < logs[j].ID
		}
		return logs[i].Timestamp < logs[j].Timestamp
	})
	return logs, nil
}
