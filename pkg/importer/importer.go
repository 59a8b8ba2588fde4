// Package importer creates devices in bulk from an Excel workbook.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"device-inventory-api/internal/models"

	"github.com/tealeg/xlsx/v3"
)

// Creator is the registry surface the importer writes through
type Creator interface {
	Create(ctx context.Context, actor string, req models.CreateDeviceRequest) (*models.Device, error)
	ValidateCreate(ctx context.Context, actor string, req models.CreateDeviceRequest) error
}

// ErrTooManyErrors stops an import once MaxErrors rows have failed
var ErrTooManyErrors = errors.New("too many row errors")

// ImportOptions defines the configuration for Excel import operations
type ImportOptions struct {
	// Actor is the user id recorded as performed_by on every created device
	Actor       string
	MappingPath string
	// Mapping takes precedence over MappingPath when set
	Mapping   *MappingConfig
	DryRun    bool
	MaxErrors int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name     string     `json:"name"`
	Inserted int        `json:"inserted"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
	UIDs     []int64    `json:"uids,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Inserted int            `json:"inserted"`
	Skipped  int            `json:"skipped"`
	Errors   int            `json:"errors"`
	Sheets   []SheetSummary `json:"sheets"`
	DryRun   bool           `json:"dry_run"`
}

// ImportExcel reads one sheet of the workbook in r and creates a device per
// data row through c. With DryRun set rows are only validated.
func ImportExcel(ctx context.Context, c Creator, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{
		DryRun: opts.DryRun,
		Sheets: []SheetSummary{},
	}

	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 50
	}

	mapping, err := resolveMapping(opts)
	if err != nil {
		return summary, fmt.Errorf("failed to load mapping config: %w", err)
	}

	// xlsx needs the whole workbook in memory
	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}

	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}

	sheet, err := pickSheet(xlFile, mapping.Sheet)
	if err != nil {
		return summary, err
	}
	defer sheet.Close()

	sheetSummary, err := processSheet(ctx, c, newSheetData(sheet), mapping, opts)
	summary.Sheets = append(summary.Sheets, sheetSummary)
	summary.Inserted += sheetSummary.Inserted
	summary.Skipped += sheetSummary.Skipped
	summary.Errors += sheetSummary.Errors

	return summary, err
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, fmt.Errorf("sheet %q not found in workbook", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.Sheets[0], nil
}

// rowSource is the row access the importer needs from *xlsx.Sheet
type rowSource interface {
	Row(idx int) (*xlsx.Row, error)
}

type sheetData struct {
	name   string
	maxRow int
	maxCol int
	rows   rowSource
}

func newSheetData(s *xlsx.Sheet) sheetData {
	return sheetData{name: s.Name, maxRow: s.MaxRow, maxCol: s.MaxCol, rows: s}
}

func processSheet(ctx context.Context, c Creator, sheet sheetData, mapping *MappingConfig, opts ImportOptions) (SheetSummary, error) {
	summary := SheetSummary{Name: sheet.name}

	if sheet.maxRow == 0 {
		return summary, nil
	}

	headerRow, err := sheet.rows.Row(0)
	if err != nil {
		return summary, fmt.Errorf("failed to read header row: %w", err)
	}

	// column index -> device field
	columns := make(map[int]string)
	for col := 0; col < sheet.maxCol; col++ {
		if field := mapping.fieldFor(headerRow.GetCell(col).String()); field != "" {
			if _, dup := columnFor(columns, field); !dup {
				columns[col] = field
			}
		}
	}
	for _, field := range []string{FieldType, FieldBrand, FieldModel} {
		if _, ok := columnFor(columns, field); !ok && mapping.Defaults[field] == "" {
			return summary, fmt.Errorf("sheet %q has no column for %s", sheet.name, field)
		}
	}

	for rowIdx := 1; rowIdx < sheet.maxRow; rowIdx++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		row, err := sheet.rows.Row(rowIdx)
		if err != nil {
			return summary, fmt.Errorf("read row %d: %w", rowIdx+1, err)
		}

		cells := make(map[string]string, len(columns))
		for col, field := range columns {
			if v := strings.TrimSpace(row.GetCell(col).String()); v != "" {
				cells[field] = v
			}
		}

		// Skip if no data in row
		if len(cells) == 0 {
			summary.Skipped++
			continue
		}

		req := buildDeviceRequest(cells, mapping)

		if opts.DryRun {
			err = c.ValidateCreate(ctx, opts.Actor, req)
		} else {
			var d *models.Device
			if d, err = c.Create(ctx, opts.Actor, req); err == nil {
				summary.UIDs = append(summary.UIDs, d.UID)
			}
		}
		if err != nil {
			summary.Errors++
			summary.Samples = append(summary.Samples, RowError{
				Sheet:   sheet.name,
				Row:     rowIdx + 1,
				Message: err.Error(),
			})
			if summary.Errors >= opts.MaxErrors {
				return summary, fmt.Errorf("%w (%d), stopping import", ErrTooManyErrors, summary.Errors)
			}
			continue
		}
		summary.Inserted++
	}

	return summary, nil
}

func columnFor(columns map[int]string, field string) (int, bool) {
	for col, f := range columns {
		if f == field {
			return col, true
		}
	}
	return 0, false
}

// buildDeviceRequest turns the mapped cells of one row into a create request
func buildDeviceRequest(cells map[string]string, mapping *MappingConfig) models.CreateDeviceRequest {
	value := func(field string) string {
		v, ok := cells[field]
		if !ok {
			v = mapping.Defaults[field]
		}
		return mapping.normalize(field, v)
	}
	optional := func(field string) *string {
		if v := value(field); v != "" {
			return &v
		}
		return nil
	}

	return models.CreateDeviceRequest{
		Type:         models.DeviceType(strings.ToLower(value(FieldType))),
		Brand:        value(FieldBrand),
		Model:        value(FieldModel),
		Description:  optional(FieldDescription),
		SerialNumber: optional(FieldSerialNumber),
		AssignedTo:   optional(FieldAssignedTo),
		Status:       models.DeviceStatus(strings.ToLower(value(FieldStatus))),
	}
}
