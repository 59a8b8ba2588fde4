package models

import (
	"strconv"
	"strings"
)

// DeviceType is the hardware category of a device
type DeviceType string

const (
	DeviceTypeDesktop    DeviceType = "desktop"
	DeviceTypeLaptop     DeviceType = "laptop"
	DeviceTypeSmartphone DeviceType = "smartphone"
	DeviceTypeTablet     DeviceType = "tablet"
)

// DeviceStatus is the lifecycle state of a device
type DeviceStatus string

const (
	StatusAvailable DeviceStatus = "available"
	StatusCheckOut  DeviceStatus = "check-out"
	StatusBroken    DeviceStatus = "broken"
	StatusSold      DeviceStatus = "sold"
)

// ValidDeviceTypes defines the accepted device types, in display order
var ValidDeviceTypes = []DeviceType{
	DeviceTypeDesktop,
	DeviceTypeLaptop,
	DeviceTypeSmartphone,
	DeviceTypeTablet,
}

// ValidStatuses defines the accepted device statuses, in display order
var ValidStatuses = []DeviceStatus{
	StatusAvailable,
	StatusCheckOut,
	StatusBroken,
	StatusSold,
}

// IsValid checks if the type is one of ValidDeviceTypes
func (t DeviceType) IsValid() bool {
	for _, v := range ValidDeviceTypes {
		if t == v {
			return true
		}
	}
	return false
}

// IsValid checks if the status is one of ValidStatuses
func (s DeviceStatus) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Device represents a tracked device record
type Device struct {
	UID          int64        `json:"uid"`
	Type         DeviceType   `json:"type"`
	Brand        string       `json:"brand"`
	Model        string       `json:"model"`
	Description  *string      `json:"description,omitempty"`
	SerialNumber *string      `json:"serial_number,omitempty"`
	AssignedTo   *string      `json:"assigned_to,omitempty"`
	Status       DeviceStatus `json:"status"`
}

// Clone returns a copy that shares no pointers with d
func (d Device) Clone() Device {
	out := d
	out.Description = cloneString(d.Description)
	out.SerialNumber = cloneString(d.SerialNumber)
	out.AssignedTo = cloneString(d.AssignedTo)
	return out
}

// Snapshot returns the non-empty fields of the device as log details
func (d Device) Snapshot() LogDetails {
	details := LogDetails{
		"uid":    strconv.FormatInt(d.UID, 10),
		"type":   string(d.Type),
		"brand":  d.Brand,
		"model":  d.Model,
		"status": string(d.Status),
	}
	if d.Description != nil {
		details["description"] = *d.Description
	}
	if d.SerialNumber != nil {
		details["serial_number"] = *d.SerialNumber
	}
	if d.AssignedTo != nil {
		details["assigned_to"] = *d.AssignedTo
	}
	return details
}

// DeviceWithNames is a device decorated with resolved user names for display
type DeviceWithNames struct {
	Device
	AssignedToName *string `json:"assigned_to_name,omitempty"`
}

// CreateDeviceRequest represents the request body for creating a new device
type CreateDeviceRequest struct {
	Type         DeviceType   `json:"type" validate:"required"`
	Brand        string       `json:"brand" validate:"required"`
	Model        string       `json:"model" validate:"required"`
	Description  *string      `json:"description,omitempty"`
	SerialNumber *string      `json:"serial_number,omitempty"`
	AssignedTo   *string      `json:"assigned_to,omitempty"`
	Status       DeviceStatus `json:"status,omitempty"`
}

// UpdateDeviceRequest represents the request body for updating a device.
// type, brand and model are fixed at creation and have no field here.
type UpdateDeviceRequest struct {
	Description  *string      `json:"description,omitempty"`
	SerialNumber *string      `json:"serial_number,omitempty"`
	AssignedTo   *string      `json:"assigned_to,omitempty"`
	Status       DeviceStatus `json:"status"`
}

// Apply writes the mutable fields of req onto d and reports which fields changed
func (req UpdateDeviceRequest) Apply(d *Device) []string {
	var changed []string
	if req.Description != nil && !equalString(d.Description, req.Description) {
		d.Description = nullIfBlank(req.Description)
		changed = append(changed, "description")
	}
	if req.SerialNumber != nil && !equalString(d.SerialNumber, req.SerialNumber) {
		d.SerialNumber = nullIfBlank(req.SerialNumber)
		changed = append(changed, "serial_number")
	}
	if req.AssignedTo != nil && !equalString(d.AssignedTo, req.AssignedTo) {
		d.AssignedTo = nullIfBlank(req.AssignedTo)
		changed = append(changed, "assigned_to")
	}
	if req.Status != "" && req.Status != d.Status {
		d.Status = req.Status
		changed = append(changed, "status")
	}
	return changed
}

// NormalizeOptional trims an optional string and maps blank input to nil
func NormalizeOptional(s *string) *string {
	return nullIfBlank(s)
}

func nullIfBlank(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// equalString compares an optional stored value with a submitted one,
// treating nil and blank as the same value.
func equalString(stored, submitted *string) bool {
	a := nullIfBlank(stored)
	b := nullIfBlank(submitted)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
