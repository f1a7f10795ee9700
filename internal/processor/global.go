package processor

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/ipcareas/internal/countries"
	"github.com/woozymasta/ipcareas/internal/geo"
	"github.com/woozymasta/ipcareas/internal/index"
	"github.com/woozymasta/ipcareas/internal/merge"
	"github.com/woozymasta/ipcareas/internal/topology"
)

// buildGlobal merges every combined country dataset into the global file and
// returns its path, or "" when nothing was written.
func (d *Downloader) buildGlobal() string {
	log.Info().Msg("Building global dataset")

	files := slices.Clone(d.combined)
	if len(files) == 0 {
		files = discoverCombined(d.Config.DataDir)
	}
	if len(files) == 0 {
		log.Warn().Msg("No combined country datasets found, global file not updated")
		return ""
	}
	slices.Sort(files)

	agg := merge.New()
	for _, path := range files {
		features, err := topology.LoadFeatures(path)
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Unable to read combined dataset")
			continue
		}
		if len(features) == 0 {
			continue
		}
		d.mergeInto(agg, features, merge.Source{
			Label:    filepath.Base(path),
			Priority: merge.PriorityNeutral,
		})
	}

	if agg.Len() == 0 {
		log.Warn().Msg("No features discovered while building the global dataset")
		return ""
	}

	final := agg.Flatten()
	for _, f := range final {
		delete(f.Properties, geo.PropColor)
		delete(f.Properties, geo.PropYear)
	}

	path := filepath.Join(d.Config.DataDir, GlobalFileName)
	topo := topology.Encode(final)
	topo.Round(d.Config.Global.Precision)
	if err := topology.Write(path, topo); err != nil {
		log.Error().Err(err).Msg("Failed to write global dataset")
		return ""
	}
	d.written = append(d.written, path)
	d.simplifyFile(path, d.global)

	if d.index != nil {
		representative := 0
		if years := agg.Years(); len(years) > 0 {
			representative = years[len(years)-1]
		}
		d.index.Add(index.Item{
			Country:      countries.Global,
			Year:         representative,
			Path:         path,
			FeatureCount: len(final),
			Variant:      index.VariantGlobal,
		})
	}

	legacy := filepath.Join(d.Config.DataDir, LegacyGlobalFileName)
	if fileExists(legacy) {
		if err := os.Remove(legacy); err != nil {
			log.Warn().Err(err).Str("file", legacy).Msg("Unable to remove legacy global dataset")
		} else {
			log.Info().Str("path", topology.DisplayPath(legacy, d.root)).Msg("Removed legacy global dataset")
		}
	}

	if d.Metrics != nil {
		d.Metrics.DatasetFeatures.WithLabelValues("global").Set(float64(len(final)))
	}

	log.Info().
		Str("path", topology.DisplayPath(path, d.root)).
		Int("features", len(final)).
		Msg("Global dataset saved")

	return path
}

// discoverCombined finds <data>/<ISO3>/<ISO3>_combined_areas.topojson files.
func discoverCombined(dataDir string) []string {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(dataDir, e.Name(), e.Name()+CombinedSuffix)
		if fileExists(candidate) {
			out = append(out, candidate)
		}
	}
	return out
}
