package sink

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/types"
)

func newTestWorkbook(t *testing.T) *Workbook {
	t.Helper()
	return NewWorkbook(filepath.Join(t.TempDir(), "out", "results.xlsx"), logger.Discard())
}

func rawRows(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	return rows
}

func TestEnsureSchemaCreatesWorkbookOnce(t *testing.T) {
	w := newTestWorkbook(t)
	for i := 0; i < 2; i++ {
		if err := w.EnsureSchema("YouTube"); err != nil {
			t.Fatalf("EnsureSchema #%d: %v", i, err)
		}
	}
	rows := rawRows(t, w.Path(), "YouTube")
	if len(rows) != 1 {
		t.Fatalf("rows = %v, want header only", rows)
	}
	for i, h := range Header {
		if rows[0][i] != h {
			t.Fatalf("header[%d] = %q, want %q", i, rows[0][i], h)
		}
	}

	f, _ := excelize.OpenFile(w.Path())
	defer f.Close()
	if idx, _ := f.GetSheetIndex(defaultSheet); idx >= 0 {
		t.Fatalf("default sheet left in new workbook: %v", f.GetSheetList())
	}
}

func TestAppendRowsIsAppendOnly(t *testing.T) {
	w := newTestWorkbook(t)
	first := []types.ViolationRecord{
		{ItemID: "a", Transcript: "one", Reason: "r1", Start: 1.5, End: 2, SourceLink: "L", TimestampLink: "L&t=1"},
		{ItemID: "a", Transcript: "two", Reason: "r2", Start: 3, End: 4, SourceLink: "L", TimestampLink: "L&t=3"},
	}
	if err := w.AppendRows("YouTube", first); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	if err := w.EnsureSchema("YouTube"); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	before := rawRows(t, w.Path(), "YouTube")

	second := []types.ViolationRecord{{ItemID: "b", Transcript: "three", Reason: "r3", Start: 9, End: 10}}
	if err := w.AppendRows("YouTube", second); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	after := rawRows(t, w.Path(), "YouTube")

	if len(after) != len(before)+1 {
		t.Fatalf("rows after = %d, want %d", len(after), len(before)+1)
	}
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				t.Fatalf("row %d col %d changed: %q -> %q", i, j, before[i][j], after[i][j])
			}
		}
	}

	got, err := w.ReadRows("YouTube")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(got) != 3 || got[0] != first[0] || got[2].ItemID != "b" || got[2].Start != 9 {
		t.Fatalf("ReadRows = %+v", got)
	}
}

func TestSheetsAreIndependent(t *testing.T) {
	w := newTestWorkbook(t)
	if err := w.AppendRows("YouTube", []types.ViolationRecord{{ItemID: "v"}}); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendRows("Patreon", []types.ViolationRecord{{ItemID: "p1"}, {ItemID: "p2"}}); err != nil {
		t.Fatal(err)
	}
	yt, _ := w.ReadRows("YouTube")
	pt, _ := w.ReadRows("Patreon")
	if len(yt) != 1 || len(pt) != 2 {
		t.Fatalf("youtube=%d patreon=%d", len(yt), len(pt))
	}
}

func TestAppendNothingDoesNotCreateWorkbook(t *testing.T) {
	w := newTestWorkbook(t)
	if err := w.AppendRows("YouTube", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Fatalf("workbook created for empty append: %v", err)
	}
}

func TestReadRowsMissing(t *testing.T) {
	w := newTestWorkbook(t)
	rows, err := w.ReadRows("YouTube")
	if err != nil || rows != nil {
		t.Fatalf("ReadRows = %v, %v", rows, err)
	}
}

func TestCorruptWorkbookIsPersistenceError(t *testing.T) {
	w := newTestWorkbook(t)
	os.MkdirAll(filepath.Dir(w.Path()), 0o755)
	if err := os.WriteFile(w.Path(), []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := w.AppendRows("YouTube", []types.ViolationRecord{{ItemID: "x"}})
	if !errors.Is(err, types.ErrPersistence) {
		t.Fatalf("err = %v", err)
	}
}

func TestSaveReplacesWorkbookWithoutLeftovers(t *testing.T) {
	w := newTestWorkbook(t)
	for i := 0; i < 3; i++ {
		if err := w.AppendRows("YouTube", []types.ViolationRecord{{ItemID: "a"}}); err != nil {
			t.Fatalf("AppendRows #%d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(w.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "results.xlsx" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("dir = %v", names)
	}
	if rows := rawRows(t, w.Path(), "YouTube"); len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
}

func TestFailedSaveKeepsPreviousWorkbook(t *testing.T) {
	w := newTestWorkbook(t)
	if err := w.AppendRows("YouTube", []types.ViolationRecord{{ItemID: "kept"}}); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(w.Path())
	// a read-only directory refuses the temp file
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o755)
	if f, err := os.CreateTemp(dir, "check-*"); err == nil {
		f.Close()
		os.Remove(f.Name())
		t.Skip("directory permissions not enforced")
	}

	err := w.AppendRows("YouTube", []types.ViolationRecord{{ItemID: "lost"}})
	if !errors.Is(err, types.ErrPersistence) {
		t.Fatalf("err = %v", err)
	}
	got, err := w.ReadRows("YouTube")
	if err != nil || len(got) != 1 || got[0].ItemID != "kept" {
		t.Fatalf("ReadRows = %+v, %v", got, err)
	}
}
