// Package dates extracts analysis metadata fields that upstream data spells in
// many ways and parses the mixed timestamp formats found in them.
//
// All parsed timestamps are UTC wall-clock values; zoned inputs are converted to UTC.
package dates

import (
	"math"
	"strings"
	"time"

	"github.com/woozymasta/ipcareas/internal/geo"
)

// Equivalent spellings per logical field, in lookup order.
var (
	FromKeys          = []string{"from_date", "fromDate", "analysis_from", "period_from", "start_date", "from"}
	ToKeys            = []string{"to_date", "toDate", "analysis_to", "period_to", "end_date", "to"}
	UpdatedKeys       = []string{"updated_at", "updatedAt", "last_updated", "modified_at"}
	PublishedKeys     = []string{"published_at", "publishedAt"}
	AnalysisIDKeys    = []string{"analysis_id", "analysisId", "analysisID", "analysisid", "anl_id"}
	AnalysisLabelKeys = []string{"analysis_label", "analysisLabel", "analysis_name", "analysisName", "analysis"}
)

// FirstPresent returns the value of the first key that is neither absent nor an empty string.
func FirstPresent(props geo.Properties, keys []string) (geo.Value, bool) {
	for _, key := range keys {
		if v := props.Get(key); !v.IsEmpty() {
			return v, true
		}
	}
	return geo.Null(), false
}

// isoLayouts approximate ISO-8601 as accepted for extended calendar dates with
// optional time, fraction and offset.
var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15Z07:00",
	"2006-01-02T15",
	"2006-01-02",
	"20060102",
	"20060102T150405",
	"20060102T150405Z07:00",
}

// fallbackLayouts are tried in order after ISO parsing fails.
var fallbackLayouts = []string{
	"2006-1-2",
	"2006-1-2 15:04:05",
	"2-1-2006",
	"2006/01/02",
	"Jan 2006",
	"January 2006",
}

// maxEpochSeconds is the last second of year 9999.
const maxEpochSeconds = 253402300799

// minEpochSeconds is the first second of year 1.
const minEpochSeconds = -62135596800

// ParseTimestamp parses a property value into a UTC timestamp.
// Numbers are epoch seconds; strings are ISO-8601 or one of a few fixed layouts.
// Anything unparseable reports false.
func ParseTimestamp(v geo.Value) (time.Time, bool) {
	switch v.Kind() {
	case geo.KindNumber:
		f, ok := v.Float()
		if !ok || math.IsNaN(f) || f > maxEpochSeconds || f < minEpochSeconds {
			return time.Time{}, false
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC(), true

	case geo.KindString:
		return ParseString(v.String())

	default:
		return time.Time{}, false
	}
}

// ParseString parses a timestamp string. See ParseTimestamp.
func ParseString(s string) (time.Time, bool) {
	text := strings.TrimSpace(s)
	if text == "" {
		return time.Time{}, false
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

// Compare orders two optional timestamps, treating an absent timestamp as the minimum.
func Compare(a time.Time, aok bool, b time.Time, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	default:
		return a.Compare(b)
	}
}
