package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Operation is the kind of mutation recorded in the audit log
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// IsValid checks if the operation is create, update or delete
func (o Operation) IsValid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// LogDetails is the snapshot of fields affected by an operation
type LogDetails map[string]string

// Value implements the driver.Valuer interface for JSONB storage
func (d LogDetails) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// Scan implements the sql.Scanner interface for JSONB storage
func (d *LogDetails) Scan(value interface{}) error {
	if value == nil {
		*d = LogDetails{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("log details: unsupported scan type")
	}

	out := LogDetails{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*d = out
	return nil
}

// LogEntry is one immutable audit record of a device operation
type LogEntry struct {
	ID            int64      `json:"id"`
	Operation     Operation  `json:"operation"`
	DeviceUID     int64      `json:"device_uid"`
	PerformedBy   string     `json:"performed_by"`
	Timestamp     int64      `json:"timestamp"`
	Details       LogDetails `json:"details"`
	ChangedFields []string   `json:"changed_fields,omitempty"`
}

// LogEntryWithNames is a log entry decorated with the actor's display name
type LogEntryWithNames struct {
	LogEntry
	PerformedByName *string `json:"performed_by_name,omitempty"`
}

// LogFilter narrows a log listing. Zero values match everything.
type LogFilter struct {
	// Operation is matched as a case-insensitive substring
	Operation string
	DeviceUID int64
}
