package worklist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"speech-compliance-go/internal/types"
)

// Load reads work items from a .txt, .json or .xlsx file. Kinds missing from
// the input are inferred from the locator and duplicate locators are dropped.
func Load(path string) ([]types.WorkItem, error) {
	var (
		items []types.WorkItem
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		items, err = loadJSON(path)
	case ".xlsx", ".xlsm":
		items, err = loadXLSX(path)
	default:
		items, err = loadText(path)
	}
	if err != nil {
		return nil, err
	}
	return dedupe(items), nil
}

func loadText(path string) ([]types.WorkItem, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open worklist: %w", err)
	}
	var out []types.WorkItem
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, itemFor(line, ""))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read worklist: %w", err)
	}
	return out, nil
}

type jsonItem struct {
	Kind    string `json:"kind"`
	Locator string `json:"locator"`
	URL     string `json:"url"`
}

func loadJSON(path string) ([]types.WorkItem, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open worklist: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("worklist %s is not a JSON array: %w", path, err)
	}
	var out []types.WorkItem
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				out = append(out, itemFor(s, ""))
			}
			continue
		}
		var obj jsonItem
		if err := json.Unmarshal(r, &obj); err != nil {
			return nil, fmt.Errorf("worklist entry %d: %w", i, err)
		}
		loc := obj.Locator
		if loc == "" {
			loc = obj.URL
		}
		if strings.TrimSpace(loc) == "" {
			return nil, fmt.Errorf("worklist entry %d: missing locator", i)
		}
		if obj.Kind != "" {
			if _, err := types.ParseKind(obj.Kind); err != nil {
				return nil, fmt.Errorf("worklist entry %d: %w", i, err)
			}
		}
		out = append(out, itemFor(loc, obj.Kind))
	}
	return out, nil
}

// loadXLSX auto-detects the locator and kind columns by header heuristics.
func loadXLSX(path string) ([]types.WorkItem, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows")
	}
	locIdx, kindIdx := -1, -1
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		if looksLikeLocator(l) {
			continue
		}
		switch {
		case strings.Contains(l, "url") || strings.Contains(l, "link") || strings.Contains(l, "locator") || strings.Contains(l, "path"):
			if locIdx == -1 {
				locIdx = i
			}
		case l == "kind" || l == "type" || strings.Contains(l, "source"):
			if kindIdx == -1 {
				kindIdx = i
			}
		}
	}
	// no header: first column, and the first row is data
	first := 1
	if locIdx == -1 && kindIdx == -1 {
		first = 0
	}
	if locIdx == -1 {
		locIdx = 0
	}
	var out []types.WorkItem
	for i, r := range rows {
		if i < first || locIdx >= len(r) {
			continue
		}
		loc := strings.TrimSpace(r[locIdx])
		if loc == "" {
			continue
		}
		kind := ""
		if kindIdx >= 0 && kindIdx < len(r) {
			kind = strings.TrimSpace(r[kindIdx])
		}
		if kind != "" {
			if _, err := types.ParseKind(kind); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		out = append(out, itemFor(loc, kind))
	}
	return out, nil
}

// looksLikeLocator tells a data cell from a header cell.
func looksLikeLocator(cell string) bool {
	if strings.HasPrefix(cell, "http://") || strings.HasPrefix(cell, "https://") {
		return true
	}
	return strings.ContainsAny(cell, `/\`) || filepath.Ext(cell) != ""
}

func itemFor(locator, kind string) types.WorkItem {
	locator = strings.TrimSpace(locator)
	k, err := types.ParseKind(kind)
	if err != nil {
		k = types.InferKind(locator)
	}
	return types.WorkItem{Kind: k, Locator: locator}
}

func dedupe(items []types.WorkItem) []types.WorkItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if seen[it.Locator] {
			continue
		}
		seen[it.Locator] = true
		out = append(out, it)
	}
	return out
}
