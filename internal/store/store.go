// Package store holds the document collections behind the device registry:
// users, devices, the audit log and the uid counter. Postgres is the
// production backend; Memory serves tests and local runs.
package store

import (
	"context"
	"errors"

	"device-inventory-api/internal/models"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write collides with an existing key.
	ErrConflict = errors.New("store: already exists")
)

// Users is the user collection.
type Users interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	// UpdateUser persists the username, email and type of u. The password
	// hash is left alone.
	UpdateUser(ctx context.Context, u *models.User) error
	SetUserPassword(ctx context.Context, id, passwordHash string) error
	// DeleteUser removes the account. Devices and log entries that
	// reference it are kept.
	DeleteUser(ctx context.Context, id string) error
}

// Devices is the device collection and its uid counter.
type Devices interface {
	// NextDeviceUID atomically increments the last_uid counter and returns
	// the new value. Values are never handed out twice.
	NextDeviceUID(ctx context.Context) (int64, error)
	InsertDevice(ctx context.Context, d models.Device) error
	GetDevice(ctx context.Context, uid int64) (*models.Device, error)
	// UpdateDevice persists the mutable fields of d.
	UpdateDevice(ctx context.Context, d models.Device) error
	DeleteDevice(ctx context.Context, uid int64) error
	// ListDevices returns every device ordered by uid ascending.
	ListDevices(ctx context.Context) ([]models.Device, error)
}

// Logs is the append-only audit log collection.
type Logs interface {
	// AppendLog stores e and sets its ID.
	AppendLog(ctx context.Context, e *models.LogEntry) error
	// ListLogs returns entries ordered by timestamp ascending.
	ListLogs(ctx context.Context, f models.LogFilter) ([]models.LogEntry, error)
}

// Tx is the set of collections reachable inside a transaction.
type Tx interface {
	Users
	Devices
	Logs
}

// Store is a transactional document store.
type Store interface {
	Tx
	// WithTx runs fn in a transaction. It commits when fn returns nil and
	// rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
