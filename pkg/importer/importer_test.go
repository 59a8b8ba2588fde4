package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"device-inventory-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
)

// fakeCreator records requests and rejects rows whose brand is "bad"
type fakeCreator struct {
	mu        sync.Mutex
	created   []models.CreateDeviceRequest
	validated []models.CreateDeviceRequest
	actors    []string
	next      int64
}

var errBadBrand = errors.New("brand is rejected")

func (f *fakeCreator) Create(_ context.Context, actor string, req models.CreateDeviceRequest) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Brand == "bad" {
		return nil, errBadBrand
	}
	f.next++
	f.created = append(f.created, req)
	f.actors = append(f.actors, actor)
	return &models.Device{UID: f.next, Type: req.Type, Brand: req.Brand, Model: req.Model}, nil
}

func (f *fakeCreator) ValidateCreate(_ context.Context, _ string, req models.CreateDeviceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Brand == "bad" {
		return errBadBrand
	}
	f.validated = append(f.validated, req)
	return nil
}

// workbook builds an in-memory .xlsx with one sheet
func workbook(t *testing.T, sheetName string, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, cells := range rows {
		row := sh.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestImportExcel_CreatesDevices(t *testing.T) {
	fc := &fakeCreator{}
	buf := workbook(t, "Devices", [][]string{
		{"Device Type", "Manufacturer", "Model", "S/N", "Status"},
		{"Laptop", "Dell", "XPS 13", "SN-1", ""},
		{"", "", "", "", ""},
		{"phone", "Apple", "iPhone 15", "", "in use"},
	})

	sum, err := ImportExcel(context.Background(), fc, buf, ImportOptions{
		Actor:   "u1",
		Mapping: testMapping(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Errors)
	require.Len(t, sum.Sheets, 1)
	assert.Equal(t, "Devices", sum.Sheets[0].Name)
	assert.Equal(t, []int64{1, 2}, sum.Sheets[0].UIDs)

	require.Len(t, fc.created, 2)
	assert.Equal(t, models.DeviceTypeLaptop, fc.created[0].Type)
	assert.Equal(t, models.StatusAvailable, fc.created[0].Status)
	require.NotNil(t, fc.created[0].SerialNumber)
	assert.Equal(t, "SN-1", *fc.created[0].SerialNumber)
	assert.Equal(t, models.DeviceTypeSmartphone, fc.created[1].Type)
	assert.Equal(t, models.StatusCheckOut, fc.created[1].Status)
	assert.Nil(t, fc.created[1].SerialNumber)
	assert.Equal(t, []string{"u1", "u1"}, fc.actors)
}

func TestImportExcel_DryRunOnlyValidates(t *testing.T) {
	fc := &fakeCreator{}
	buf := workbook(t, "Sheet1", [][]string{
		{"Type", "Brand", "Model"},
		{"tablet", "Samsung", "Tab S9"},
		{"tablet", "bad", "Tab S9"},
	})

	sum, err := ImportExcel(context.Background(), fc, buf, ImportOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, sum.DryRun)
	assert.Equal(t, 1, sum.Inserted)
	assert.Equal(t, 1, sum.Errors)
	assert.Empty(t, fc.created)
	assert.Len(t, fc.validated, 1)
	require.Len(t, sum.Sheets[0].Samples, 1)
	assert.Equal(t, 3, sum.Sheets[0].Samples[0].Row)
	assert.Contains(t, sum.Sheets[0].Samples[0].Message, "brand is rejected")
}

func TestImportExcel_StopsAfterMaxErrors(t *testing.T) {
	fc := &fakeCreator{}
	buf := workbook(t, "Sheet1", [][]string{
		{"Type", "Brand", "Model"},
		{"laptop", "bad", "a"},
		{"laptop", "bad", "b"},
		{"laptop", "Lenovo", "c"},
	})

	sum, err := ImportExcel(context.Background(), fc, buf, ImportOptions{MaxErrors: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.Equal(t, 2, sum.Errors)
	assert.Equal(t, 0, sum.Inserted)
	assert.Empty(t, fc.created)
}

func TestImportExcel_MissingRequiredColumn(t *testing.T) {
	buf := workbook(t, "Sheet1", [][]string{
		{"Type", "Model"},
		{"laptop", "X1"},
	})

	_, err := ImportExcel(context.Background(), &fakeCreator{}, buf, ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no column for brand")
}

func TestImportExcel_NamedSheet(t *testing.T) {
	buf := workbook(t, "Other", [][]string{{"Type", "Brand", "Model"}})

	m := testMapping()
	m.Sheet = "Devices"
	_, err := ImportExcel(context.Background(), &fakeCreator{}, buf, ImportOptions{Mapping: m})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Devices" not found`)
}

func TestImportExcel_RejectsGarbage(t *testing.T) {
	_, err := ImportExcel(context.Background(), &fakeCreator{}, bytes.NewBufferString("not a workbook"), ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open Excel file")
}

func TestImportExcel_CanceledContext(t *testing.T) {
	buf := workbook(t, "Sheet1", [][]string{
		{"Type", "Brand", "Model"},
		{"laptop", "Dell", "a"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fc := &fakeCreator{}
	_, err := ImportExcel(ctx, fc, buf, ImportOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fc.created)
}

// brokenRows serves rows from a real sheet until failAt
type brokenRows struct {
	sheet  *xlsx.Sheet
	failAt int
}

var errRowUnreadable = errors.New("cell store unavailable")

func (b brokenRows) Row(idx int) (*xlsx.Row, error) {
	if idx == b.failAt {
		return nil, errRowUnreadable
	}
	return b.sheet.Row(idx)
}

func TestProcessSheet_UnreadableRowFailsImport(t *testing.T) {
	buf := workbook(t, "Sheet1", [][]string{
		{"Type", "Brand", "Model"},
		{"laptop", "Dell", "a"},
		{"laptop", "Dell", "b"},
		{"laptop", "Dell", "c"},
	})
	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sh := f.Sheets[0]
	defer sh.Close()

	data := newSheetData(sh)
	data.rows = brokenRows{sheet: sh, failAt: 2}

	fc := &fakeCreator{}
	sum, err := processSheet(context.Background(), fc, data, DefaultMapping(), ImportOptions{MaxErrors: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, errRowUnreadable)
	assert.Contains(t, err.Error(), "read row 3")
	assert.Equal(t, 1, sum.Inserted)
	assert.Len(t, fc.created, 1)
}

func TestParseMapping(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "valid",
			doc: `version: 1
aliases:
  type: [Type]
  brand: [Brand]
  model: [Model]
values:
  status:
    in use: check-out
`,
		},
		{
			name:    "wrong version",
			doc:     "version: 2\n",
			wantErr: "unsupported version",
		},
		{
			name: "unknown field",
			doc: `version: 1
aliases:
  colour: [Colour]
`,
			wantErr: `unknown field "colour"`,
		},
		{
			name: "required field without alias",
			doc: `version: 1
aliases:
  type: [Type]
  model: [Model]
`,
			wantErr: `field "brand" needs an alias or a default`,
		},
		{
			name: "default stands in for alias",
			doc: `version: 1
aliases:
  type: [Type]
  model: [Model]
defaults:
  brand: Generic
`,
		},
		{
			name:    "bad yaml",
			doc:     "version: [",
			wantErr: "parse mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMapping([]byte(tt.doc))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, m.Version)
		})
	}
}

func TestLoadMapping(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\naliases:\n  type: [Kind]\n  brand: [Make]\n  model: [Model]\n"), 0o600))

	m, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, FieldType, m.fieldFor(" kind "))
	assert.Equal(t, "", m.fieldFor("Serial"))

	_, err = LoadMapping(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedMappingParses(t *testing.T) {
	m, err := LoadMapping(filepath.Join("..", "..", DefaultMappingPath))
	require.NoError(t, err)
	assert.Equal(t, "check-out", m.normalize(FieldStatus, "In Use"))
	assert.Equal(t, "laptop", m.normalize(FieldType, "Notebook"))
}

func TestResolveMapping(t *testing.T) {
	m, err := resolveMapping(ImportOptions{MappingPath: DefaultMappingPath})
	require.NoError(t, err)
	assert.Equal(t, DefaultMapping(), m)

	_, err = resolveMapping(ImportOptions{MappingPath: "nowhere/else.yaml"})
	assert.Error(t, err)
}

func testMapping() *MappingConfig {
	m := DefaultMapping()
	m.Aliases[FieldType] = append(m.Aliases[FieldType], "Device Type")
	m.Values = map[string]map[string]string{
		FieldType:   {"phone": "smartphone"},
		FieldStatus: {"in use": "check-out"},
	}
	return m
}
