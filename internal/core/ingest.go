package core

// ingest.go turns an uploaded spreadsheet into staged records.
//
// Flow:
//  1. Wait for an ingest slot (IngestLimiter).
//  2. Read the sheet (.csv or .xlsx) and find the header row within the
//     first MaxHeaderSearchRows rows, matching column aliases.
//  3. Load the taxonomy once and run every row through the Pipeline.
//  4. Stage the candidates as one batch; failures are reported per line.

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/intake/internal/classify"
	"github.com/JonMunkholm/intake/internal/logging"
)

// DefaultMaxHeaderSearchRows is how far down a sheet the header may sit.
const DefaultMaxHeaderSearchRows = 20

type column int

const (
	colProductName column = iota
	colManufacturer
	colVariant
	colCategory
	colBrand
	colImage
)

var headerAliases = map[string]column{
	"product name":      colProductName,
	"productname":       colProductName,
	"name":              colProductName,
	"manufacturer":      colManufacturer,
	"manufacturer name": colManufacturer,
	"manufacturername":  colManufacturer,
	"variant":           colVariant,
	"size":              colVariant,
	"weight":            colVariant,
	"category":          colCategory,
	"product category":  colCategory,
	"productcategory":   colCategory,
	"brand":             colBrand,
	"image":             colImage,
	"image url":         colImage,
	"imageurl":          colImage,
}

var requiredColumns = []struct {
	col  column
	name string
}{
	{colProductName, "product name"},
	{colManufacturer, "manufacturer"},
	{colVariant, "variant"},
}

// headerIndex maps a logical column to its position in the sheet.
type headerIndex map[column]int

func matchHeader(row []string) headerIndex {
	idx := make(headerIndex)
	for i, cell := range row {
		col, ok := headerAliases[normalizeHeader(cell)]
		if !ok {
			continue
		}
		if _, taken := idx[col]; !taken {
			idx[col] = i
		}
	}
	return idx
}

func (h headerIndex) missing() []string {
	var out []string
	for _, rc := range requiredColumns {
		if _, ok := h[rc.col]; !ok {
			out = append(out, rc.name)
		}
	}
	return out
}

func (h headerIndex) cell(row []string, col column) string {
	pos, ok := h[col]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}

// ReadSpreadsheet parses a .csv or .xlsx file into raw rows. The file type
// comes from the extension; no extension is read as CSV.
func ReadSpreadsheet(fileName string, data []byte, maxHeaderRows int) ([]RawRow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ValidationError{Field: "file", Message: "empty file"}
	}

	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv", ".txt", "":
		records, err = parseCSV(data)
	case ".xlsx", ".xlsm":
		records, err = parseXLSX(data)
	default:
		return nil, &ValidationError{Field: "file", Value: ext, Message: "unsupported file type, use .csv or .xlsx"}
	}
	if err != nil {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("invalid spreadsheet: %v", err)}
	}

	return rowsFromRecords(records, maxHeaderRows)
}

func parseCSV(data []byte) ([][]string, error) {
	data, err := toUTF8(stripBOM(data))
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// parseXLSX reads the first sheet of a workbook.
func parseXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func rowsFromRecords(records [][]string, maxHeaderRows int) ([]RawRow, error) {
	if len(records) == 0 {
		return nil, &ValidationError{Field: "file", Message: "empty file"}
	}
	if maxHeaderRows <= 0 {
		maxHeaderRows = DefaultMaxHeaderSearchRows
	}

	headerRow, idx := findHeader(records, maxHeaderRows)
	if headerRow < 0 {
		return nil, &ValidationError{
			Field:   "header",
			Message: fmt.Sprintf("missing required column: %s", strings.Join(idx.missing(), ", ")),
		}
	}

	var rows []RawRow
	for i, rec := range records[headerRow+1:] {
		if isEmptyRow(rec) {
			continue
		}
		rows = append(rows, RawRow{
			Line:             headerRow + i + 2,
			ProductName:      idx.cell(rec, colProductName),
			ManufacturerName: idx.cell(rec, colManufacturer),
			Variant:          idx.cell(rec, colVariant),
			ProductCategory:  idx.cell(rec, colCategory),
			Brand:            idx.cell(rec, colBrand),
			ImageURL:         idx.cell(rec, colImage),
		})
	}
	if len(rows) == 0 {
		return nil, &ValidationError{Field: "file", Message: "empty file: no data rows after header"}
	}
	return rows, nil
}

// findHeader returns the first row carrying every required column. When
// none does it returns -1 and the best partial match, for the error.
func findHeader(records [][]string, maxRows int) (int, headerIndex) {
	maxRows = min(maxRows, len(records))

	best := headerIndex{}
	for i := 0; i < maxRows; i++ {
		idx := matchHeader(records[i])
		if len(idx.missing()) == 0 {
			return i, idx
		}
		if len(idx) > len(best) {
			best = idx
		}
	}
	return -1, best
}

// Ingest reads a spreadsheet and stages every row as a new batch.
// Row-level problems are reported in the result; the error return is for
// failures that stopped the whole ingest.
func (s *Service) Ingest(ctx context.Context, fileName string, data []byte) (*IngestResult, error) {
	start := s.now()

	if int64(len(data)) > s.cfg.Ingest.MaxFileSize {
		return nil, &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file too large: %d bytes exceeds the %d byte limit", len(data), s.cfg.Ingest.MaxFileSize),
		}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Ingest.Timeout)
	defer cancel()

	batchID := uuid.New()
	log := logging.WithFields(ctx, "batch_id", batchID, "file", fileName)
	log.Info("ingest started", "bytes", len(data))

	rows, err := ReadSpreadsheet(fileName, data, s.cfg.Ingest.MaxHeaderSearchRows)
	if err != nil {
		log.Warn("ingest rejected", "error", err)
		return nil, err
	}

	tax, err := s.loadTaxonomy(ctx)
	if err != nil {
		log.Error("ingest aborted: taxonomy unavailable", "error", err)
		return nil, err
	}

	pipeline := NewPipeline(s.classifier, tax)
	candidates := make([]NormalizedCandidate, len(rows))
	for i, row := range rows {
		candidates[i] = pipeline.Normalize(row)
	}

	staged := s.Stage(ctx, batchID, candidates)

	result := &IngestResult{
		BatchID:   batchID,
		FileName:  fileName,
		TotalRows: len(rows),
	}
	for _, o := range staged.Outcomes {
		if o.Err != nil {
			row := rows[o.Index]
			result.FailedRows = append(result.FailedRows, FailedRow{
				FileName:   fileName,
				LineNumber: row.Line,
				Reason:     o.Err.Error(),
				Data:       row.Values(),
			})
			continue
		}
		result.Records = append(result.Records, o.Value)
		if o.Value.Unparseable() {
			result.Unparseable++
		}
		if o.Value.Unclassified() {
			result.Unclassified++
		}
	}
	result.Staged = len(result.Records)
	result.Failed = len(result.FailedRows)
	result.Duration = s.now().Sub(start)

	s.logAudit(ctx, AuditLogParams{
		Action:       ActionIngest,
		BatchID:      batchID,
		RecordIDs:    staged.SucceededIDs(),
		RowsAffected: result.Staged,
		Detail: map[string]any{
			"file":         fileName,
			"failed":       result.Failed,
			"unparseable":  result.Unparseable,
			"unclassified": result.Unclassified,
		},
	})

	log.Info("ingest complete",
		"rows", result.TotalRows,
		"staged", result.Staged,
		"failed", result.Failed,
		"unparseable", result.Unparseable,
		"unclassified", result.Unclassified,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// loadTaxonomy fetches the categories and builds the lookup value.
func (s *Service) loadTaxonomy(ctx context.Context) (*classify.Taxonomy, error) {
	cats, err := s.taxonomy.ListCategories(ctx)
	if err != nil {
		return nil, Upstream("taxonomy", err)
	}
	return classify.NewTaxonomy(cats), nil
}
