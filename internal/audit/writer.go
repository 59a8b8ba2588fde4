// Package audit records device operations in the append-only log.
//
// Entries are written through whatever store.Logs handle the caller passes,
// normally the transaction that performed the device mutation, so an
// operation is never reported successful without its entry.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"device-inventory-api/internal/models"
	"device-inventory-api/internal/store"
)

// Clock returns the current time; tests substitute a fixed one.
type Clock func() time.Time

// Writer builds log entries with non-decreasing timestamps.
type Writer struct {
	clock Clock

	mu   sync.Mutex
	last int64
}

// NewWriter creates a writer. A nil clock uses time.Now.
func NewWriter(clock Clock) *Writer {
	if clock == nil {
		clock = time.Now
	}
	return &Writer{clock: clock}
}

// Record appends one entry for op on deviceUID. changed lists the fields an
// update touched and is empty for create and delete.
func (w *Writer) Record(ctx context.Context, logs store.Logs, op models.Operation, deviceUID int64, performedBy string, details models.LogDetails, changed []string) (models.LogEntry, error) {
	if !op.IsValid() {
		return models.LogEntry{}, fmt.Errorf("audit: invalid operation %q", op)
	}
	if details == nil {
		details = models.LogDetails{}
	}

	entry := models.LogEntry{
		Operation:     op,
		DeviceUID:     deviceUID,
		PerformedBy:   performedBy,
		Timestamp:     w.nextTimestamp(),
		Details:       details,
		ChangedFields: changed,
	}
	if err := logs.AppendLog(ctx, &entry); err != nil {
		return models.LogEntry{}, fmt.Errorf("audit: %w", err)
	}
	return entry, nil
}

// List returns log entries in timestamp order.
func (w *Writer) List(ctx context.Context, logs store.Logs, f models.LogFilter) ([]models.LogEntry, error) {
	entries, err := logs.ListLogs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	return entries, nil
}

// nextTimestamp clamps the clock so timestamps never go backwards within
// this process.
func (w *Writer) nextTimestamp() int64 {
	now := w.clock().UnixMilli()

	w.mu.Lock()
	defer w.mu.Unlock()
	if now < w.last {
		now = w.last
	}
	w.last = now
	return now
}
