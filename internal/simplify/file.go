package simplify

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/woozymasta/ipcareas/internal/topology"
)

// ErrNoFeatures is returned for datasets without features.
var ErrNoFeatures = errors.New("no features available to simplify")

// FileOptions configure SimplifyFile.
type FileOptions struct {
	// Output is the target path; empty overwrites the source.
	Output string
	// Root shortens paths written to the report; empty keeps them as given.
	Root string
	// Now stamps the report; nil means time.Now.
	Now func() time.Time
}

// Stats summarises a SimplifyFile run.
type Stats struct {
	OriginalSize      int64   `json:"original_size"         yaml:"original_size"`
	NewSize           int64   `json:"new_size"              yaml:"new_size"`
	SavedBytes        int64   `json:"saved_bytes"           yaml:"saved_bytes"`
	SizeRatio         float64 `json:"size_ratio"            yaml:"size_ratio"`
	Precision         int     `json:"precision"             yaml:"precision"`
	SimplifyTolerance float64 `json:"simplify_tolerance"    yaml:"simplify_tolerance"`
	OutputPath        string  `json:"output_path"           yaml:"output_path"`
	Unsimplified      int     `json:"unsimplified_features" yaml:"unsimplified_features"`
	ReportWritten     bool    `json:"report_written"        yaml:"report_written"`

	Items []Item `json:"-" yaml:"-"`
}

// SimplifyFile simplifies a TopoJSON dataset, writes the result and the
// unsimplified report, and returns size statistics.
func (s *Simplifier) SimplifyFile(source string, opts FileOptions) (Stats, error) {
	info, err := os.Stat(source)
	if err != nil {
		return Stats{}, fmt.Errorf("could not find %s: %w", source, err)
	}

	features, err := topology.LoadFeatures(source)
	if err != nil {
		return Stats{}, err
	}
	if len(features) == 0 {
		return Stats{}, fmt.Errorf("%s: %w", source, ErrNoFeatures)
	}

	processed, items := s.Features(features, topology.DisplayPath(source, opts.Root))

	target := opts.Output
	if target == "" {
		target = source
	}
	if err := topology.Save(target, processed); err != nil {
		return Stats{}, fmt.Errorf("write %s: %w", target, err)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	written, err := WriteReport(target, topology.DisplayPath(target, opts.Root), items, now())
	if err != nil {
		return Stats{}, fmt.Errorf("write report for %s: %w", target, err)
	}

	out, err := os.Stat(target)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		OriginalSize:      info.Size(),
		NewSize:           out.Size(),
		SavedBytes:        info.Size() - out.Size(),
		Precision:         s.Precision,
		SimplifyTolerance: s.Tolerance,
		OutputPath:        target,
		Unsimplified:      len(items),
		ReportWritten:     written,
		Items:             items,
	}
	if info.Size() > 0 {
		stats.SizeRatio = float64(out.Size()) / float64(info.Size())
	}

	return stats, nil
}
