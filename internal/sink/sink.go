package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/types"
)

// Header is the fixed column layout of every result sheet.
var Header = []string{"id", "transcript", "violated_reason", "start", "end", "video_link", "timestamp_link"}

const defaultSheet = "Sheet1"

// Sink persists violation rows into named sheets of one workbook.
type Sink interface {
	EnsureSchema(name string) error
	AppendRows(name string, rows []types.ViolationRecord) error
	ReadRows(name string) ([]types.ViolationRecord, error)
}

// Workbook is an excelize-backed Sink. Every call opens the file, applies the
// change and saves it before returning.
type Workbook struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

var _ Sink = (*Workbook)(nil)

func NewWorkbook(path string, log *logger.Logger) *Workbook {
	if log == nil {
		log = logger.New()
	}
	return &Workbook{path: path, log: log.Component("sink")}
}

func (w *Workbook) Path() string { return w.path }

// EnsureSchema creates the workbook and the sheet with its header when absent.
func (w *Workbook) EnsureSchema(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, created, err := w.open()
	if err != nil {
		return types.Wrap(types.ErrPersistence, err)
	}
	defer f.Close()

	changed, err := ensureSheet(f, name, created)
	if err != nil {
		return types.Wrap(types.ErrPersistence, err)
	}
	if !changed {
		return nil
	}
	if err := w.save(f); err != nil {
		return types.Wrap(types.ErrPersistence, err)
	}
	w.log.WithField("sheet", name).Info("sheet created with header")
	return nil
}

// AppendRows writes rows after the last used row of the sheet.
func (w *Workbook) AppendRows(name string, rows []types.ViolationRecord) error {
	if len(rows) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	f, created, err := w.open()
	if err != nil {
		return types.Wrap(types.ErrPersistence, err)
	}
	defer f.Close()

	if _, err := ensureSheet(f, name, created); err != nil {
		return types.Wrap(types.ErrPersistence, err)
	}
	existing, err := f.GetRows(name)
	if err != nil {
		return types.Wrap(types.ErrPersistence, fmt.Errorf("read rows: %w", err))
	}
	next := len(existing) + 1
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return types.Wrap(types.ErrPersistence, err)
		}
		values := []interface{}{r.ItemID, r.Transcript, r.Reason, r.Start, r.End, r.SourceLink, r.TimestampLink}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return types.Wrap(types.ErrPersistence, fmt.Errorf("write row %d: %w", next+i, err))
		}
	}
	if err := w.save(f); err != nil {
		return types.Wrap(types.ErrPersistence, err)
	}
	w.log.WithField("sheet", name).WithField("rows", len(rows)).Info("rows appended")
	return nil
}

// ReadRows returns the data rows of a sheet; a missing workbook or sheet yields none.
func (w *Workbook) ReadRows(name string) ([]types.ViolationRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := os.Stat(w.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, types.Wrap(types.ErrPersistence, fmt.Errorf("open workbook: %w", err))
	}
	defer f.Close()
	if idx, _ := f.GetSheetIndex(name); idx < 0 {
		return nil, nil
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, types.Wrap(types.ErrPersistence, fmt.Errorf("read rows: %w", err))
	}
	var out []types.ViolationRecord
	for i, r := range rows {
		if i == 0 {
			continue
		}
		out = append(out, parseRow(r))
	}
	return out, nil
}

func (w *Workbook) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(w.path); err == nil {
		f, err := excelize.OpenFile(w.path)
		if err != nil {
			return nil, false, fmt.Errorf("open workbook: %w", err)
		}
		return f, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, fmt.Errorf("create workbook dir: %w", err)
		}
	}
	return excelize.NewFile(), true, nil
}

// save writes a sibling temp file and renames it over the workbook, so an
// interrupted save leaves the previous rows readable.
func (w *Workbook) save(f *excelize.File) error {
	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".results-*.xlsx")
	if err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

// ensureSheet reports whether the file was modified.
func ensureSheet(f *excelize.File, name string, fresh bool) (bool, error) {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return false, fmt.Errorf("sheet index: %w", err)
	}
	if idx >= 0 {
		rows, err := f.GetRows(name)
		if err != nil {
			return false, fmt.Errorf("read rows: %w", err)
		}
		if len(rows) > 0 {
			return fresh, nil
		}
	} else {
		if idx, err = f.NewSheet(name); err != nil {
			return false, fmt.Errorf("new sheet %q: %w", name, err)
		}
	}
	if fresh && name != defaultSheet {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return false, fmt.Errorf("drop default sheet: %w", err)
		}
		if idx, err = f.GetSheetIndex(name); err == nil && idx >= 0 {
			f.SetActiveSheet(idx)
		}
	}
	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return false, fmt.Errorf("write header: %w", err)
	}
	return true, nil
}

func parseRow(r []string) types.ViolationRecord {
	col := func(i int) string {
		if i < len(r) {
			return strings.TrimSpace(r[i])
		}
		return ""
	}
	start, _ := strconv.ParseFloat(col(3), 64)
	end, _ := strconv.ParseFloat(col(4), 64)
	return types.ViolationRecord{
		ItemID:        col(0),
		Transcript:    col(1),
		Reason:        col(2),
		Start:         start,
		End:           end,
		SourceLink:    col(5),
		TimestampLink: col(6),
	}
}
