// Package index builds index.json, the catalog of published datasets.
package index

import (
	"cmp"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/woozymasta/ipcareas/internal/countries"
	"github.com/woozymasta/ipcareas/internal/topology"
)

// FileName is the catalog file written into the data directory.
const FileName = "index.json"

// DefaultCDNBase prefixes every CDN URL; the release tag and relative path follow.
const DefaultCDNBase = "https://cdn.jsdelivr.net/gh/im4sea/ipc-areas"

// Variant tells which kind of dataset an entry points at.
type Variant string

const (
	VariantYear     Variant = "year"
	VariantCombined Variant = "combined"
	VariantGlobal   Variant = "global"
)

// Entry is one catalog item.
type Entry struct {
	Country      string
	ISO2         string
	ISO3         string
	Year         int
	RelativePath string
	FileName     string
	// FeatureCount is nil when it could not be determined.
	FeatureCount *int
	CDNURL       string
	UpdatedAt    string
	Variant      Variant
}

type entryJSON struct {
	Country      string          `json:"country"`
	ISO2         *string         `json:"iso2,omitempty"`
	ISO3         *string         `json:"iso3,omitempty"`
	Year         json.RawMessage `json:"year,omitempty"`
	RelativePath string          `json:"relative_path"`
	FileName     string          `json:"file_name"`
	FeatureCount *int            `json:"feature_count"`
	CDNURL       string          `json:"cdn_url"`
	UpdatedAt    string          `json:"updated_at"`
	Variant      Variant         `json:"variant"`
}

// MarshalJSON omits the codes and year of global entries and writes an
// unknown year as null.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		Country:      e.Country,
		RelativePath: e.RelativePath,
		FileName:     e.FileName,
		FeatureCount: e.FeatureCount,
		CDNURL:       e.CDNURL,
		UpdatedAt:    e.UpdatedAt,
		Variant:      e.Variant,
	}

	if e.Variant != VariantGlobal {
		out.ISO2 = &e.ISO2
		out.ISO3 = &e.ISO3
		out.Year = json.RawMessage("null")
		if e.Year != 0 {
			out.Year = json.RawMessage(strconv.Itoa(e.Year))
		}
	}

	return json.Marshal(out)
}

// Document is the content of index.json.
type Document struct {
	GeneratedAt   string  `json:"generated_at"`
	CDNReleaseTag string  `json:"cdn_release_tag"`
	RunID         string  `json:"run_id,omitempty"`
	TotalFiles    int     `json:"total_files"`
	Items         []Entry `json:"items"`
}

// Item describes a dataset to add.
type Item struct {
	Country countries.Country
	// Year is zero for combined and global datasets.
	Year int
	Path string
	// FeatureCount is read from the file when not positive.
	FeatureCount int
	Variant      Variant
	// UpdatedAt defaults to the time of Add.
	UpdatedAt string
}

// Builder collects entries for one run.
type Builder struct {
	ReleaseTag string
	RunID      string
	// Root is the directory relative paths are computed from.
	Root    string
	CDNBase string
	Now     func() time.Time

	entries []Entry
}

// NewBuilder returns a builder for a release tag.
func NewBuilder(releaseTag, runID, root string) *Builder {
	return &Builder{
		ReleaseTag: releaseTag,
		RunID:      runID,
		Root:       root,
		CDNBase:    DefaultCDNBase,
		Now:        time.Now,
	}
}

// Add appends an entry for a dataset file.
func (b *Builder) Add(it Item) Entry {
	rel := topology.DisplayPath(it.Path, b.Root)

	var count *int
	if it.FeatureCount > 0 {
		n := it.FeatureCount
		count = &n
	} else if n, ok := topology.InferFeatureCount(it.Path); ok {
		count = &n
	}

	updated := it.UpdatedAt
	if updated == "" {
		updated = Timestamp(b.now())
	}

	name := it.Country.Name
	if name == "" {
		name = it.Country.ISO2
	}

	e := Entry{
		Country:      name,
		ISO2:         it.Country.ISO2,
		ISO3:         it.Country.ISO3,
		Year:         it.Year,
		RelativePath: rel,
		FileName:     filepath.Base(it.Path),
		FeatureCount: count,
		CDNURL:       strings.TrimSuffix(b.CDNBase, "/") + "@" + b.ReleaseTag + "/" + rel,
		UpdatedAt:    updated,
		Variant:      it.Variant,
	}
	if e.Variant == VariantGlobal {
		e.ISO2, e.ISO3, e.Year = "", "", 0
	}

	b.entries = append(b.entries, e)
	return e
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Document returns the catalog with items ordered by ISO3, variant, year
// (unknown first) and file name.
func (b *Builder) Document() Document {
	items := slices.Clone(b.entries)
	slices.SortStableFunc(items, func(x, y Entry) int {
		return cmp.Or(
			strings.Compare(x.ISO3, y.ISO3),
			strings.Compare(string(x.Variant), string(y.Variant)),
			cmp.Compare(sortYear(x.Year), sortYear(y.Year)),
			strings.Compare(x.FileName, y.FileName),
		)
	})
	if items == nil {
		items = []Entry{}
	}

	return Document{
		GeneratedAt:   Timestamp(b.now()),
		CDNReleaseTag: b.ReleaseTag,
		RunID:         b.RunID,
		TotalFiles:    len(items),
		Items:         items,
	}
}

// Write stores index.json in dir and returns its path.
func (b *Builder) Write(dir string) (string, error) {
	data, err := json.MarshalIndent(b.Document(), "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

func sortYear(y int) int {
	if y == 0 {
		return -1
	}
	return y
}

// Timestamp formats t as a UTC second-precision ISO-8601 string.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
