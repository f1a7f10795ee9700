package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/ipcareas/internal/analysis"
	"github.com/woozymasta/ipcareas/internal/countries"
	"github.com/woozymasta/ipcareas/internal/geo"
	"github.com/woozymasta/ipcareas/internal/index"
	"github.com/woozymasta/ipcareas/internal/ipc"
	"github.com/woozymasta/ipcareas/internal/merge"
	"github.com/woozymasta/ipcareas/internal/metrics"
	"github.com/woozymasta/ipcareas/internal/state"
	"github.com/woozymasta/ipcareas/internal/topology"
)

// yearDataset is what is known about one assessment year of a country.
type yearDataset struct {
	path      string
	count     int
	selection *analysis.Selection
}

// processCountry runs the merge cycle of one country. It reports false when
// no source contributed any feature.
func (d *Downloader) processCountry(ctx context.Context, c countries.Country) (bool, error) {
	log.Info().Str("country", c.Name).Str("iso2", c.ISO2).Msg("Processing country")

	dir := filepath.Join(d.Config.DataDir, c.ISO3)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("create %s: %w", dir, err)
	}

	combined := filepath.Join(dir, c.ISO3+CombinedSuffix)
	migrateLegacyCombined(filepath.Join(dir, c.ISO3+AreasSuffix), combined)

	agg := merge.New()
	years := make(map[int]yearDataset)

	if fileExists(combined) {
		features, err := topology.LoadFeatures(combined)
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(combined)).Msg("Unable to read combined dataset")
		} else if len(features) > 0 {
			st := d.mergeInto(agg, features, merge.Source{
				Label:    "legacy_combined",
				Priority: merge.PriorityLegacyCombined,
			})
			if st.Changed() {
				log.Info().
					Int("baseline", st.Added).
					Int("refreshed", st.Updated).
					Msg("Legacy combined dataset merged")
			}
		}
	}

	for _, ef := range existingYearFiles(dir, c.ISO3) {
		features, err := topology.LoadFeatures(ef.path)
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(ef.path)).Msg("Unable to read year dataset")
			continue
		}
		if len(features) == 0 {
			continue
		}

		st := d.mergeInto(agg, features, merge.Source{
			Label:    "existing:" + strconv.Itoa(ef.year),
			Priority: merge.PriorityExisting,
			Year:     ef.year,
		})
		if st.Changed() {
			log.Info().
				Int("year", ef.year).
				Int("added", st.Added).
				Int("updated", st.Updated).
				Msg("Existing year dataset merged")
		}
		years[ef.year] = yearDataset{path: ef.path, count: len(features)}
	}

	for _, year := range d.Config.Years {
		if err := d.yearLimiter.Wait(ctx); err != nil {
			return false, err
		}

		features, sel, ok := d.download(ctx, c, year)
		if !ok {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("%s_%d%s", c.ISO3, year, AreasSuffix))
		if d.Config.WriteYearFiles {
			if err := topology.Save(path, features); err != nil {
				log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Unable to write year dataset")
			} else {
				d.written = append(d.written, path)
				log.Info().Str("path", topology.DisplayPath(path, d.root)).Msg("Saved")
			}
		}
		years[year] = yearDataset{path: path, count: len(features), selection: &sel}

		st := d.mergeInto(agg, features, merge.Source{
			Label:    "download:" + strconv.Itoa(year),
			Priority: merge.PriorityDownload,
			Year:     year,
		})

		ev := log.Info().
			Int("year", year).
			Int("features", len(features)).
			Int("added", st.Added).
			Int("updated", st.Updated)
		analysisFields(ev, sel).Msg("Year retained")

		d.recordSelection(ctx, c.ISO3, year, sel, len(features))
	}

	if agg.Len() == 0 {
		log.Warn().Str("country", c.Name).Msg("No data found in any year")
		return false, nil
	}

	final := agg.Flatten()
	if err := topology.Save(combined, final); err != nil {
		return false, fmt.Errorf("write %s: %w", combined, err)
	}
	d.written = append(d.written, combined)
	d.combined = append(d.combined, combined)
	d.simplifyFile(combined, d.country)

	available := make([]int, 0, len(years))
	for y := range years {
		available = append(available, y)
	}
	slices.Sort(available)
	if len(available) == 0 {
		available = agg.Years()
	}

	if d.index != nil {
		for _, year := range available {
			ds, ok := years[year]
			if !ok {
				continue
			}
			d.index.Add(index.Item{
				Country:      c,
				Year:         year,
				Path:         ds.path,
				FeatureCount: ds.count,
				Variant:      index.VariantYear,
				UpdatedAt:    d.updatedHint(ctx, c.ISO3, year, ds),
			})
		}

		representative := 0
		if len(available) > 0 {
			representative = available[len(available)-1]
		}
		d.index.Add(index.Item{
			Country:      c,
			Year:         representative,
			Path:         combined,
			FeatureCount: len(final),
			Variant:      index.VariantCombined,
		})
	}

	if d.Metrics != nil {
		d.Metrics.DatasetFeatures.WithLabelValues(c.ISO3 + "_combined").Set(float64(len(final)))
	}

	log.Info().
		Str("country", c.Name).
		Int("features", len(final)).
		Ints("years", available).
		Msg("Combined dataset saved")

	return true, nil
}

// download fetches, selects and cleans one year. It reports false when the
// year contributes nothing.
func (d *Downloader) download(ctx context.Context, c countries.Country, year int) ([]geo.Feature, analysis.Selection, bool) {
	log.Info().Str("country", c.ISO2).Int("year", year).Msg("Downloading areas")

	raw, err := d.Fetcher.FetchAreas(ctx, c.ISO2, year)
	if err != nil {
		if errors.Is(err, ipc.ErrNoData) {
			d.countFetch(metrics.ResultNoData)
			log.Info().Str("country", c.ISO2).Int("year", year).Msg("No data available")
		} else {
			d.countFetch(metrics.ResultError)
			log.Warn().Err(err).Str("country", c.ISO2).Int("year", year).Msg("Request failed")
		}
		return nil, analysis.Selection{}, false
	}
	d.countFetch(metrics.ResultOK)

	selected, sel := analysis.Select(raw, analysis.Options{Today: d.today, TargetYear: year})

	features := d.clean(selected, c, year)
	if len(features) == 0 {
		log.Info().Str("country", c.ISO2).Int("year", year).Msg("No valid polygon features found")
		return nil, sel, false
	}

	enrich(features, sel)
	return features, sel, true
}

func (d *Downloader) countFetch(result string) {
	if d.Metrics != nil {
		d.Metrics.Fetches.WithLabelValues(result).Inc()
	}
}

func (d *Downloader) recordSelection(ctx context.Context, iso3 string, year int, sel analysis.Selection, count int) {
	if d.State == nil {
		return
	}
	err := d.State.RecordSelection(ctx, state.SelectionRecord{
		ISO3:         iso3,
		Year:         year,
		Selection:    sel,
		FeatureCount: count,
		RecordedAt:   d.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("iso3", iso3).Int("year", year).Msg("Failed to record analysis selection")
	}
}

// updatedHint is the update timestamp published for a year entry: the
// analysis update time, else its end date. Years read from disk fall back
// to the selection stored by an earlier run.
func (d *Downloader) updatedHint(ctx context.Context, iso3 string, year int, ds yearDataset) string {
	sel := ds.selection
	if sel == nil && d.State != nil {
		rec, ok, err := d.State.Selection(ctx, iso3, year)
		if err != nil {
			log.Warn().Err(err).Str("iso3", iso3).Int("year", year).Msg("Failed to read analysis selection")
		} else if ok {
			sel = &rec.Selection
		}
	}
	if sel == nil {
		return ""
	}

	switch {
	case sel.UpdatedAt.Truthy():
		return sel.UpdatedAt.String()
	case sel.ToDate.Truthy():
		return sel.ToDate.String()
	}
	return ""
}

// analysisFields adds the identifying parts of a selection to a log event.
func analysisFields(ev *zerolog.Event, sel analysis.Selection) *zerolog.Event {
	if sel.AnalysisID.Truthy() {
		ev = ev.Str("analysis_id", sel.AnalysisID.String())
	}
	if sel.AnalysisLabel.Truthy() {
		ev = ev.Str("analysis_label", sel.AnalysisLabel.String())
	}
	if sel.ToDate.Truthy() {
		ev = ev.Str("to_date", sel.ToDate.String())
	}
	return ev
}

type yearFile struct {
	path string
	year int
}

// existingYearFiles lists <ISO3>_<YEAR>_areas.topojson files in dir, sorted by name.
func existingYearFiles(dir, iso3 string) []yearFile {
	matches, err := filepath.Glob(filepath.Join(dir, iso3+"_*"+AreasSuffix))
	if err != nil {
		return nil
	}
	slices.Sort(matches)

	var out []yearFile
	for _, path := range matches {
		if year, ok := yearFromFileName(filepath.Base(path), iso3); ok {
			out = append(out, yearFile{path: path, year: year})
		}
	}
	return out
}

func yearFromFileName(name, iso3 string) (int, bool) {
	core, ok := strings.CutPrefix(name, iso3+"_")
	if !ok {
		return 0, false
	}
	core, ok = strings.CutSuffix(core, AreasSuffix)
	if !ok {
		return 0, false
	}

	year, err := strconv.Atoi(core)
	if err != nil {
		return 0, false
	}
	return year, true
}

// migrateLegacyCombined renames <ISO3>_areas.topojson to the combined name,
// or removes it when a combined file already exists.
func migrateLegacyCombined(legacy, modern string) {
	if !fileExists(legacy) {
		return
	}

	if !fileExists(modern) {
		if err := os.Rename(legacy, modern); err != nil {
			log.Warn().Err(err).Str("file", legacy).Msg("Unable to rename legacy combined dataset")
			return
		}
		log.Info().
			Str("from", filepath.Base(legacy)).
			Str("to", filepath.Base(modern)).
			Msg("Renamed legacy combined dataset")
		return
	}

	if err := os.Remove(legacy); err != nil {
		log.Warn().Err(err).Str("file", legacy).Msg("Unable to remove legacy dataset")
		return
	}
	log.Info().Str("file", filepath.Base(legacy)).Msg("Removed legacy dataset")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
