package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"device-inventory-api/internal/auth"
	"device-inventory-api/internal/registry"
	"device-inventory-api/pkg/importer"

	"github.com/rs/zerolog"
)

// ImportObserver receives row counts after each import run
type ImportObserver interface {
	ObserveImport(inserted, skipped, failed int)
}

// batchCreator is implemented by creators that can defer cache refreshes
// until the end of a bulk load.
type batchCreator interface {
	Batch() *registry.Batch
}

// ImportsHandler handles Excel import operations
type ImportsHandler struct {
	Creator    importer.Creator
	Observer   ImportObserver
	MaxBytes   int64
	DefaultMap string
}

// NewImportsHandler creates a new imports handler. observer may be nil.
func NewImportsHandler(creator importer.Creator, observer ImportObserver) *ImportsHandler {
	return &ImportsHandler{
		Creator:    creator,
		Observer:   observer,
		MaxBytes:   20 << 20, // 20 MB
		DefaultMap: importer.DefaultMappingPath,
	}
}

// UploadExcel handles Excel file uploads for device import.
// Form fields: file (required), dry_run, max_errors and an optional
// YAML column mapping sent as a "mapping" file part or text field.
func (h *ImportsHandler) UploadExcel(w http.ResponseWriter, r *http.Request) {
	// Limit body size
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)

	// Require multipart
	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, http.StatusBadRequest, "INVALID_CONTENT_TYPE", "content-type must be multipart/form-data")
		return
	}

	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "invalid multipart form: "+err.Error())
		return
	}

	actor := auth.UserIDFromContext(r.Context())
	if actor == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	dryRun := r.FormValue("dry_run") == "true"
	maxErrors := 50
	if v := r.FormValue("max_errors"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxErrors = n
		}
	}

	opts := importer.ImportOptions{
		Actor:       actor,
		MappingPath: h.DefaultMap,
		DryRun:      dryRun,
		MaxErrors:   maxErrors,
	}

	mapping, err := readMapping(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MAPPING", err.Error())
		return
	}
	opts.Mapping = mapping

	// File
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "file is required: "+err.Error())
		return
	}
	defer file.Close()

	if !isXLSX(header) {
		writeError(w, http.StatusBadRequest, "INVALID_FILE_TYPE", "only .xlsx files are accepted")
		return
	}

	logger := zerolog.Ctx(r.Context())
	var creator importer.Creator = h.Creator
	if bc, ok := h.Creator.(batchCreator); ok && !dryRun {
		batch := bc.Batch()
		defer batch.Done(r.Context())
		creator = batch
	}
	sum, impErr := importer.ImportExcel(r.Context(), creator, file, opts)
	if h.Observer != nil && !dryRun {
		h.Observer.ObserveImport(sum.Inserted, sum.Skipped, sum.Errors)
	}
	if impErr != nil {
		logger.Warn().Err(impErr).Str("file", header.Filename).Int("inserted", sum.Inserted).Msg("import failed")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "IMPORT_FAILED",
			"details": impErr.Error(),
			"data":    sum, // might include partial
		})
		return
	}

	logger.Info().
		Str("file", header.Filename).
		Bool("dry_run", dryRun).
		Int("inserted", sum.Inserted).
		Int("skipped", sum.Skipped).
		Int("errors", sum.Errors).
		Msg("import finished")

	writeJSON(w, http.StatusOK, map[string]any{
		"data": sum,
		"meta": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		},
	})
}

// readMapping parses the optional mapping of the form
func readMapping(r *http.Request) (*importer.MappingConfig, error) {
	part, _, err := r.FormFile("mapping")
	if errors.Is(err, http.ErrMissingFile) {
		text := r.FormValue("mapping")
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return importer.ParseMapping([]byte(text))
	}
	if err != nil {
		return nil, err
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}
	return importer.ParseMapping(data)
}

// isXLSX checks if the uploaded file is an Excel .xlsx file
func isXLSX(h *multipart.FileHeader) bool {
	name := strings.ToLower(h.Filename)
	return strings.HasSuffix(name, ".xlsx")
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, auth.ErrorResponse{Error: message, Code: code})
}
