package simplify

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/woozymasta/ipcareas/internal/geo"
)

// Item describes one feature kept without simplification.
type Item struct {
	Title         geo.Value  `json:"title"`
	ID            geo.Value  `json:"id"`
	Country       geo.Value  `json:"country"`
	Year          geo.Value  `json:"year"`
	Reason        Reason     `json:"reason"`
	Detail        string     `json:"detail"`
	SourceDataset string     `json:"source_dataset"`
	AnalysisLabel *geo.Value `json:"analysis_label,omitempty"`
	AnalysisID    *geo.Value `json:"analysis_id,omitempty"`
	From          *geo.Value `json:"from,omitempty"`
	To            *geo.Value `json:"to,omitempty"`
}

func newItem(props geo.Properties, f Failure, source string) Item {
	item := Item{
		Title:         firstTruthy(props, geo.PropTitle, "name"),
		ID:            firstTruthy(props, geo.PropID),
		Country:       props.Get(geo.PropCountry),
		Year:          props.Get(geo.PropYear),
		Reason:        f.Reason,
		Detail:        f.Detail,
		SourceDataset: source,
	}

	optional := func(key string) *geo.Value {
		v, ok := props[key]
		if !ok {
			return nil
		}
		return &v
	}
	item.AnalysisLabel = optional("analysis_label")
	item.AnalysisID = optional("analysis_id")
	item.From = optional(geo.PropFrom)
	item.To = optional(geo.PropTo)

	return item
}

func firstTruthy(props geo.Properties, keys ...string) geo.Value {
	for _, k := range keys {
		if v := props.Get(k); v.Truthy() {
			return v
		}
	}
	return geo.Null()
}

// Report is the document listing unsimplified features of one dataset.
type Report struct {
	GeneratedAt       string `json:"generated_at"`
	SourceFile        string `json:"source_file"`
	TotalUnsimplified int    `json:"total_unsimplified"`
	Items             []Item `json:"items"`
}

// ReportPath returns the report location for a dataset: <stem>_unsimplified.json next to it.
func ReportPath(dataset string) string {
	ext := filepath.Ext(dataset)
	stem := strings.TrimSuffix(filepath.Base(dataset), ext)
	return filepath.Join(filepath.Dir(dataset), stem+"_unsimplified.json")
}

// WriteReport writes the report for dataset, or removes a stale one when there
// are no items. It reports whether a report file exists afterwards.
func WriteReport(dataset, display string, items []Item, now time.Time) (bool, error) {
	path := ReportPath(dataset)

	if len(items) == 0 {
		err := os.Remove(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return true, err
		}
		return false, nil
	}

	report := Report{
		GeneratedAt:       now.UTC().Format(time.RFC3339),
		SourceFile:        display,
		TotalUnsimplified: len(items),
		Items:             items,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}
