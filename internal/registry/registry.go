// Package registry owns the device records: validation, uid allocation,
// create/update/delete with their audit entries, and the cached device list.
//
// Every mutation runs in a single store transaction that allocates the uid
// (for creates), writes the device and appends the log entry. Either all of
// it is committed or none of it is.
package registry

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"device-inventory-api/internal/audit"
	"device-inventory-api/internal/models"
	"device-inventory-api/internal/store"

	"github.com/rs/zerolog"
)

// Recorder receives the outcome of each mutation. The HTTP layer's metrics
// implement it.
type Recorder interface {
	ObserveDeviceOperation(op models.Operation, code string)
}

// OutcomeSuccess is the code reported to the Recorder for a successful call.
const OutcomeSuccess = "OK"

// Registry manages device records.
type Registry struct {
	store    store.Store
	audit    *audit.Writer
	logger   zerolog.Logger
	recorder Recorder
	cache    deviceCache
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithClock sets the clock used for log timestamps.
func WithClock(clock audit.Clock) Option {
	return func(r *Registry) { r.audit = audit.NewWriter(clock) }
}

// WithRecorder sets where operation outcomes are reported.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// New creates a Registry backed by s.
func New(s store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:  s,
		audit:  audit.NewWriter(nil),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates req and stores a new device under the next uid.
func (r *Registry) Create(ctx context.Context, actor string, req models.CreateDeviceRequest) (*models.Device, error) {
	d, err := r.create(ctx, actor, req, true)
	r.observe(models.OperationCreate, err)
	return d, err
}

func (r *Registry) create(ctx context.Context, actor string, req models.CreateDeviceRequest, reload bool) (*models.Device, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	draft, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	var created models.Device
	err = r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := checkAssignee(ctx, tx, draft.AssignedTo); err != nil {
			return err
		}

		uid, err := tx.NextDeviceUID(ctx)
		if err != nil {
			return err
		}
		draft.UID = uid

		if err := tx.InsertDevice(ctx, draft); err != nil {
			return err
		}
		if _, err := r.audit.Record(ctx, tx, models.OperationCreate, uid, actor, draft.Snapshot(), nil); err != nil {
			return err
		}
		created = draft.Clone()
		return nil
	})
	if err != nil {
		return nil, r.mutationError("create device", err)
	}

	r.logger.Info().Int64("uid", created.UID).Str("actor", actor).Msg("device created")
	r.cache.invalidate()
	if reload {
		r.reload(ctx)
	}
	return &created, nil
}

// Batch is a Creator for bulk loads. Its creates only invalidate the cache;
// Done reloads it once.
type Batch struct {
	r *Registry
}

// Batch starts a bulk load. Call Done when the last row is written.
func (r *Registry) Batch() *Batch {
	return &Batch{r: r}
}

// Create is Registry.Create without the per-call cache reload.
func (b *Batch) Create(ctx context.Context, actor string, req models.CreateDeviceRequest) (*models.Device, error) {
	d, err := b.r.create(ctx, actor, req, false)
	b.r.observe(models.OperationCreate, err)
	return d, err
}

func (b *Batch) ValidateCreate(ctx context.Context, actor string, req models.CreateDeviceRequest) error {
	return b.r.ValidateCreate(ctx, actor, req)
}

// Done refreshes the device cache once for the whole batch.
func (b *Batch) Done(ctx context.Context) {
	if b.r.cache.stale() {
		b.r.reload(ctx)
	}
}

// ValidateCreate runs the create checks, including the assignee lookup,
// without writing anything.
func (r *Registry) ValidateCreate(ctx context.Context, actor string, req models.CreateDeviceRequest) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	draft, err := validateCreate(req)
	if err != nil {
		return err
	}
	if err := checkAssignee(ctx, r.store, draft.AssignedTo); err != nil {
		var regErr *Error
		if errors.As(err, &regErr) {
			return err
		}
		return remoteFailure("validate device", err)
	}
	return nil
}

// Update applies the mutable fields of req to device uid.
func (r *Registry) Update(ctx context.Context, actor string, uid int64, req models.UpdateDeviceRequest) (*models.Device, error) {
	d, err := r.update(ctx, actor, uid, req)
	r.observe(models.OperationUpdate, err)
	return d, err
}

func (r *Registry) update(ctx context.Context, actor string, uid int64, req models.UpdateDeviceRequest) (*models.Device, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !req.Status.IsValid() {
		return nil, validationError(CodeInvalidStatus, "status %q is not one of %s", req.Status, statusList())
	}

	var updated models.Device
	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := checkAssignee(ctx, tx, models.NormalizeOptional(req.AssignedTo)); err != nil {
			return err
		}

		current, err := tx.GetDevice(ctx, uid)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(uid)
		}
		if err != nil {
			return err
		}

		next := current.Clone()
		changed := req.Apply(&next)
		if err := tx.UpdateDevice(ctx, next); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError(uid)
			}
			return err
		}
		if _, err := r.audit.Record(ctx, tx, models.OperationUpdate, uid, actor, submittedFields(uid, req), changed); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, r.mutationError("update device", err)
	}

	r.logger.Info().Int64("uid", uid).Str("actor", actor).Msg("device updated")
	r.cache.invalidate()
	r.reload(ctx)
	return &updated, nil
}

// Delete removes device uid. It reports false whenever err is non-nil.
func (r *Registry) Delete(ctx context.Context, actor string, uid int64) (bool, error) {
	ok, err := r.delete(ctx, actor, uid)
	r.observe(models.OperationDelete, err)
	return ok, err
}

func (r *Registry) delete(ctx context.Context, actor string, uid int64) (bool, error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}

	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetDevice(ctx, uid)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(uid)
		}
		if err != nil {
			return err
		}

		if err := tx.DeleteDevice(ctx, uid); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError(uid)
			}
			return err
		}
		_, err = r.audit.Record(ctx, tx, models.OperationDelete, uid, actor, current.Snapshot(), nil)
		return err
	})
	if err != nil {
		return false, r.mutationError("delete device", err)
	}

	r.logger.Info().Int64("uid", uid).Str("actor", actor).Msg("device deleted")
	r.cache.remove(uid)
	r.reload(ctx)
	return true, nil
}

// List returns every device ordered by uid. An empty registry yields an
// empty slice.
func (r *Registry) List(ctx context.Context) ([]models.Device, error) {
	if devices, ok := r.cache.snapshot(); ok {
		return devices, nil
	}
	devices, err := r.load(ctx)
	if err != nil {
		return nil, remoteFailure("list devices", err)
	}
	return devices, nil
}

// Search is List filtered by Search.
func (r *Registry) Search(ctx context.Context, query string) ([]models.Device, error) {
	devices, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return Search(devices, query), nil
}

// Get returns device uid.
func (r *Registry) Get(ctx context.Context, uid int64) (*models.Device, error) {
	if d, ok := r.cache.lookup(uid); ok {
		return &d, nil
	}
	d, err := r.store.GetDevice(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(uid)
	}
	if err != nil {
		return nil, remoteFailure("get device", err)
	}
	return d, nil
}

// Logs returns audit entries matching f in timestamp order.
func (r *Registry) Logs(ctx context.Context, f models.LogFilter) ([]models.LogEntry, error) {
	entries, err := r.audit.List(ctx, r.store, f)
	if err != nil {
		return nil, remoteFailure("list logs", err)
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	return entries, nil
}

// CacheStale reports whether the next List goes to the store.
func (r *Registry) CacheStale() bool {
	return r.cache.stale()
}

// reload refreshes the cache after a mutation. A failure leaves the cache
// stale and is only logged; the mutation itself has already committed.
func (r *Registry) reload(ctx context.Context) {
	if _, err := r.load(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("device cache reload failed, cache left stale")
	}
}

func (r *Registry) load(ctx context.Context) ([]models.Device, error) {
	gen := r.cache.currentGeneration()
	devices, err := r.store.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []models.Device{}
	}
	r.cache.fill(devices, gen)
	return devices, nil
}

func (r *Registry) mutationError(action string, err error) error {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr
	}
	r.logger.Error().Err(err).Msg(action + " failed")
	return remoteFailure(action, err)
}

func (r *Registry) observe(op models.Operation, err error) {
	if r.recorder == nil {
		return
	}
	code := OutcomeSuccess
	if err != nil {
		code = string(CodeOf(err))
	}
	r.recorder.ObserveDeviceOperation(op, code)
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return &Error{Kind: KindUnauthenticated, Code: CodeUnauthenticated, Message: "user is not authenticated"}
	}
	return nil
}

// validateCreate checks req in order and returns the normalized device
// without a uid.
func validateCreate(req models.CreateDeviceRequest) (models.Device, error) {
	if !req.Type.IsValid() {
		return models.Device{}, validationError(CodeInvalidType, "type %q is not one of %s", req.Type, typeList())
	}
	status := req.Status
	if status == "" {
		status = models.StatusAvailable
	}
	if !status.IsValid() {
		return models.Device{}, validationError(CodeInvalidStatus, "status %q is not one of %s", status, statusList())
	}
	brand := strings.TrimSpace(req.Brand)
	if brand == "" {
		return models.Device{}, validationError(CodeMissingRequiredField, "brand is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return models.Device{}, validationError(CodeMissingRequiredField, "model is required")
	}

	return models.Device{
		Type:         req.Type,
		Brand:        brand,
		Model:        model,
		Description:  models.NormalizeOptional(req.Description),
		SerialNumber: models.NormalizeOptional(req.SerialNumber),
		AssignedTo:   models.NormalizeOptional(req.AssignedTo),
		Status:       status,
	}, nil
}

func checkAssignee(ctx context.Context, users store.Users, assignee *string) error {
	if assignee == nil {
		return nil
	}
	_, err := users.GetUser(ctx, *assignee)
	if errors.Is(err, store.ErrNotFound) {
		return validationError(CodeUnknownAssignee, "assignee %q does not exist", *assignee)
	}
	return err
}

// submittedFields is the detail map of an update entry: the uid plus every
// field the caller sent. Cleared fields are recorded as empty strings.
func submittedFields(uid int64, req models.UpdateDeviceRequest) models.LogDetails {
	details := models.LogDetails{
		"uid":    strconv.FormatInt(uid, 10),
		"status": string(req.Status),
	}
	put := func(key string, v *string) {
		if v == nil {
			return
		}
		if n := models.NormalizeOptional(v); n != nil {
			details[key] = *n
			return
		}
		details[key] = ""
	}
	put("description", req.Description)
	put("serial_number", req.SerialNumber)
	put("assigned_to", req.AssignedTo)
	return details
}

func typeList() string {
	names := make([]string, len(models.ValidDeviceTypes))
	for i, t := range models.ValidDeviceTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func statusList() string {
	names := make([]string, len(models.ValidStatuses))
	for i, s := range models.ValidStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
