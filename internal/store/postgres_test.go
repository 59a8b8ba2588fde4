package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"device-inventory-api/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresWithMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

var deviceColumns = []string{"uid", "type", "brand", "model", "description", "serial_number", "assigned_to", "status"}

func TestPostgresNextDeviceUID(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+counters.*ON\s+CONFLICT\s+\(name\)\s+DO\s+UPDATE\s+SET\s+value\s*=\s*counters\.value\s*\+\s*1.*RETURNING\s+value`).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(5)))

	uid, err := p.NextDeviceUID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), uid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDeviceNotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)SELECT\s+uid,.*FROM\s+devices\s+WHERE\s+uid\s*=\s*\$1\s*$`).
		WithArgs(int64(3)).
		WillReturnError(sql.ErrNoRows)

	_, err := p.GetDevice(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDeviceScansNullables(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)SELECT\s+uid,.*FROM\s+devices\s+WHERE\s+uid\s*=\s*\$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(deviceColumns).
			AddRow(int64(1), "laptop", "HP", "EliteBook 840", nil, "SN-9", nil, "available"))

	d, err := p.GetDevice(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceTypeLaptop, d.Type)
	assert.Nil(t, d.Description)
	require.NotNil(t, d.SerialNumber)
	assert.Equal(t, "SN-9", *d.SerialNumber)
	assert.Nil(t, d.AssignedTo)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithTxLocksRowsAndCommits(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)FROM\s+devices\s+WHERE\s+uid\s*=\s*\$1\s+FOR\s+UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(deviceColumns).
			AddRow(int64(1), "tablet", "Apple", "iPad", nil, nil, nil, "available"))
	mock.ExpectExec(`(?s)UPDATE\s+devices\s+SET\s+description\s*=\s*\$1,\s*serial_number\s*=\s*\$2,\s*assigned_to\s*=\s*\$3,\s*status\s*=\s*\$4\s+WHERE\s+uid\s*=\s*\$5`).
		WithArgs(nil, nil, nil, "broken", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+device_logs.*RETURNING\s+id`).
		WithArgs("update", int64(1), "u1", int64(100), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	entry := &models.LogEntry{Operation: models.OperationUpdate, DeviceUID: 1, PerformedBy: "u1", Timestamp: 100, Details: models.LogDetails{"status": "broken"}}
	err := p.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		d, err := tx.GetDevice(ctx, 1)
		if err != nil {
			return err
		}
		d.Status = models.StatusBroken
		if err := tx.UpdateDevice(ctx, *d); err != nil {
			return err
		}
		return tx.AppendLog(ctx, entry)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithTxRollsBackOnError(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+counters`).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(1)))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+devices`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := p.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		uid, err := tx.NextDeviceUID(ctx)
		if err != nil {
			return err
		}
		return tx.InsertDevice(ctx, models.Device{UID: uid, Type: models.DeviceTypeLaptop, Brand: "HP", Model: "X", Status: models.StatusAvailable})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateDeviceNotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`(?s)UPDATE\s+devices`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.UpdateDevice(context.Background(), models.Device{UID: 42, Status: models.StatusSold})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresDeleteDevice(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`DELETE\s+FROM\s+devices\s+WHERE\s+uid\s*=\s*\$1`).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+devices\s+WHERE\s+uid\s*=\s*\$1`).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.DeleteDevice(context.Background(), 2))
	assert.ErrorIs(t, p.DeleteDevice(context.Background(), 2), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListDevicesEmpty(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)FROM\s+devices\s+ORDER\s+BY\s+uid\s+ASC`).
		WillReturnRows(sqlmock.NewRows(deviceColumns))

	devices, err := p.ListDevices(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestPostgresListLogsFilters(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)FROM\s+device_logs\s+WHERE\s+operation\s+ILIKE\s+\$1\s+AND\s+device_uid\s*=\s*\$2\s+ORDER\s+BY\s+ts\s+ASC,\s*id\s+ASC`).
		WithArgs("%del%", int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "operation", "device_uid", "performed_by", "ts", "details", "changed_fields"}).
			AddRow(int64(1), "delete", int64(4), "u1", int64(77), []byte(`{"brand":"HP"}`), "{}"))

	logs, err := p.ListLogs(context.Background(), models.LogFilter{Operation: "del", DeviceUID: 4})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OperationDelete, logs[0].Operation)
	assert.Equal(t, "HP", logs[0].Details["brand"])
	assert.Empty(t, logs[0].ChangedFields)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUserConflict(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := p.CreateUser(context.Background(), &models.User{ID: "u1", Username: "alice", Email: "a@example.com", Type: models.RoleUser})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresGetUser(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "type", "password_hash"}).
			AddRow("u1", "alice", "alice@example.com", "admin", "hash"))

	u, err := p.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.IsAdmin())
}

func TestPostgresSetUserPassword(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u1", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+password_hash`).
		WithArgs("ghost", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.SetUserPassword(context.Background(), "u1", "newhash"))
	assert.ErrorIs(t, p.SetUserPassword(context.Background(), "ghost", "newhash"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateUser(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+username\s*=\s*\$2,\s*email\s*=\s*\$3,\s*type\s*=\s*\$4\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u1", "alicia", "alicia@example.com", models.RoleAdmin).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+username`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+username`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, p.UpdateUser(ctx, &models.User{ID: "u1", Username: "alicia", Email: "alicia@example.com", Type: models.RoleAdmin}))
	assert.ErrorIs(t, p.UpdateUser(ctx, &models.User{ID: "u1", Username: "bob", Email: "bob@example.com", Type: models.RoleUser}), ErrConflict)
	assert.ErrorIs(t, p.UpdateUser(ctx, &models.User{ID: "ghost", Username: "x", Email: "x@example.com", Type: models.RoleUser}), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteUser(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+users`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.DeleteUser(context.Background(), "u1"))
	assert.ErrorIs(t, p.DeleteUser(context.Background(), "ghost"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
