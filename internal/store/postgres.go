package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"device-inventory-api/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Postgres is the database-backed Store.
type Postgres struct {
	db   *sql.DB
	pool *pgxpool.Pool
	pgCollections
}

// pgCollections implements Tx over either the pool or an open transaction.
type pgCollections struct {
	q         querier
	forUpdate bool
}

// OpenPostgres creates a pgx connection pool, verifies it and exposes it
// through database/sql.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	p := NewPostgres(stdlib.OpenDBFromPool(pool))
	p.pool = pool
	return p, nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, pgCollections: pgCollections{q: db}}
}

// DB exposes the underlying pool for migrations.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// WithTx runs fn inside a database transaction. Device reads inside the
// transaction take row locks.
func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return withTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &pgCollections{q: tx, forUpdate: true})
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool != nil {
		return p.pool.Ping(ctx)
	}
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	err := p.db.Close()
	if p.pool != nil {
		p.pool.Close()
	}
	return err
}

func (c *pgCollections) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := c.q.QueryRowContext(ctx, `
		SELECT id, username, email, type, password_hash
		FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Username, &u.Email, &u.Type, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (c *pgCollections) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := c.q.QueryRowContext(ctx, `
		SELECT id, username, email, type, password_hash
		FROM users WHERE username = $1`, username).Scan(&u.ID, &u.Username, &u.Email, &u.Type, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &u, nil
}

func (c *pgCollections) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, username, email, type
		FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Type); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (c *pgCollections) CreateUser(ctx context.Context, u *models.User) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO users (id, username, email, type, password_hash)
		VALUES ($1, $2, $3, $4, $5)`, u.ID, u.Username, u.Email, u.Type, u.PasswordHash)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (c *pgCollections) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE users SET username = $2, email = $3, type = $4
		WHERE id = $1`, u.ID, u.Username, u.Email, u.Type)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollections) DeleteUser(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollections) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := c.q.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("set user password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextDeviceUID increments the counter row. The upsert takes a row lock, so
// concurrent callers serialise on it and each receives a distinct value.
func (c *pgCollections) NextDeviceUID(ctx context.Context) (int64, error) {
	var uid int64
	err := c.q.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES ('last_uid', 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value`).Scan(&uid)
	if err != nil {
		return 0, fmt.Errorf("allocate device uid: %w", err)
	}
	return uid, nil
}

func (c *pgCollections) InsertDevice(ctx context.Context, d models.Device) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO devices (uid, type, brand, model, description, serial_number, assigned_to, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.UID, string(d.Type), d.Brand, d.Model, d.Description, d.SerialNumber, d.AssignedTo, string(d.Status))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (c *pgCollections) GetDevice(ctx context.Context, uid int64) (*models.Device, error) {
	query := `
		SELECT uid, type, brand, model, description, serial_number, assigned_to, status
		FROM devices WHERE uid = $1`
	if c.forUpdate {
		query += " FOR UPDATE"
	}

	var d models.Device
	err := c.q.QueryRowContext(ctx, query, uid).
		Scan(&d.UID, &d.Type, &d.Brand, &d.Model, &d.Description, &d.SerialNumber, &d.AssignedTo, &d.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return &d, nil
}

func (c *pgCollections) UpdateDevice(ctx context.Context, d models.Device) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE devices
		SET description = $1, serial_number = $2, assigned_to = $3, status = $4
		WHERE uid = $5`,
		d.Description, d.SerialNumber, d.AssignedTo, string(d.Status), d.UID)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollections) DeleteDevice(ctx context.Context, uid int64) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM devices WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollections) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT uid, type, brand, model, description, serial_number, assigned_to, status
		FROM devices ORDER BY uid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.UID, &d.Type, &d.Brand, &d.Model, &d.Description, &d.SerialNumber, &d.AssignedTo, &d.Status); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

func (c *pgCollections) AppendLog(ctx context.Context, e *models.LogEntry) error {
	changed := e.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	err := c.q.QueryRowContext(ctx, `
		INSERT INTO device_logs (operation, device_uid, performed_by, ts, details, changed_fields)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.Operation), e.DeviceUID, e.PerformedBy, e.Timestamp, e.Details, pq.Array(changed)).
		Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (c *pgCollections) ListLogs(ctx context.Context, f models.LogFilter) ([]models.LogEntry, error) {
	clauses := []string{}
	args := []interface{}{}
	arg := 1

	if op := strings.TrimSpace(f.Operation); op != "" {
		clauses = append(clauses, fmt.Sprintf("operation ILIKE $%d", arg))
		args = append(args, "%"+op+"%")
		arg++
	}
	if f.DeviceUID != 0 {
		clauses = append(clauses, fmt.Sprintf("device_uid = $%d", arg))
		args = append(args, f.DeviceUID)
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := c.q.QueryContext(ctx, `
		SELECT id, operation, device_uid, performed_by, ts, details, COALESCE(changed_fields, '{}')
		FROM device_logs`+whereClause+`
		ORDER BY ts ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	logs := []models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		var changed pq.StringArray
		if err := rows.Scan(&e.ID, &e.Operation, &e.DeviceUID, &e.PerformedBy, &e.Timestamp, &e.Details, &changed); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if len(changed) > 0 {
			e.ChangedFields = changed
		}
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
