// Package processor drives the per-country download and merge cycles and the
// global pass that follows them. It owns every file, network and state store
// access of a run; the merge, selection and simplification packages it calls
// are pure.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/woozymasta/ipcareas/internal/config"
	"github.com/woozymasta/ipcareas/internal/countries"
	"github.com/woozymasta/ipcareas/internal/geo"
	"github.com/woozymasta/ipcareas/internal/index"
	"github.com/woozymasta/ipcareas/internal/merge"
	"github.com/woozymasta/ipcareas/internal/metrics"
	"github.com/woozymasta/ipcareas/internal/simplify"
	"github.com/woozymasta/ipcareas/internal/state"
	"github.com/woozymasta/ipcareas/internal/topology"
)

// Dataset file names.
const (
	AreasSuffix          = "_areas.topojson"
	CombinedSuffix       = "_combined_areas.topojson"
	GlobalFileName       = "global_areas.topojson"
	LegacyGlobalFileName = "ipc_global_areas.topojson"
)

// ErrNoCountries is returned when the region and code filters leave nothing to process.
var ErrNoCountries = errors.New("no countries selected")

// Fetcher downloads the raw areas of a country (ISO2 code) for a year.
type Fetcher interface {
	FetchAreas(ctx context.Context, iso2 string, year int) ([]geo.RawFeature, error)
}

// Downloader runs one download cycle over the configured countries and years.
type Downloader struct {
	Config     *config.Config
	Fetcher    Fetcher
	ReleaseTag string
	RunID      string
	// State and Metrics are optional.
	State   *state.Store
	Metrics *metrics.Metrics
	Now     func() time.Time

	root       string
	today      time.Time
	iso3ByISO2 map[string]string
	index      *index.Builder
	country    *simplify.Simplifier
	global     *simplify.Simplifier

	countryLimiter *rate.Limiter
	yearLimiter    *rate.Limiter

	combined []string
	written  []string
}

// Summary reports the outcome of Run.
type Summary struct {
	RunID      string   `json:"run_id"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	IndexPath  string   `json:"index_path,omitempty"`
	GlobalPath string   `json:"global_path,omitempty"`
	Files      []string `json:"files"`
}

// New returns a downloader with a fresh run id.
func New(cfg *config.Config, fetcher Fetcher, releaseTag string) *Downloader {
	return &Downloader{
		Config:     cfg,
		Fetcher:    fetcher,
		ReleaseTag: releaseTag,
		RunID:      uuid.NewString(),
		Now:        time.Now,
	}
}

// SelectCountries loads the countries file and applies the region and code filters.
func (d *Downloader) SelectCountries() ([]countries.Country, error) {
	table, err := countries.Load(d.Config.CountriesFile, d.Config.OCHARegion)
	if err != nil {
		return nil, err
	}
	if table.Skipped > 0 {
		log.Warn().Int("rows", table.Skipped).Msg("Skipped countries without ISO codes")
	}

	selected, missing := countries.Filter(table.Countries, d.Config.Countries)
	if len(missing) > 0 {
		log.Warn().Strs("codes", missing).Msg("Requested country codes not found in countries file")
	}
	if len(selected) == 0 {
		return nil, ErrNoCountries
	}

	return selected, nil
}

// Run processes every selected country, then builds the global dataset and
// the index. Only configuration errors and cancellation are returned; a
// country that fails is logged and counted.
func (d *Downloader) Run(ctx context.Context) (Summary, error) {
	list, err := d.SelectCountries()
	if err != nil {
		return Summary{}, err
	}

	if err := os.MkdirAll(d.Config.DataDir, 0755); err != nil {
		return Summary{}, fmt.Errorf("create data dir: %w", err)
	}

	d.prepare(list)
	sum := Summary{RunID: d.RunID}

	region := d.Config.OCHARegion
	if region == "" {
		region = "All regions"
	}
	log.Info().
		Int("countries", len(list)).
		Str("region", region).
		Ints("years", d.Config.Years).
		Str("release", d.ReleaseTag).
		Str("run_id", d.RunID).
		Msg("Starting download")

	d.startRun(ctx)

	for _, c := range list {
		if err := d.countryLimiter.Wait(ctx); err != nil {
			return sum, err
		}

		ok, err := d.processCountry(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			log.Error().Err(err).Str("country", c.Name).Msg("Error processing country")
		}

		result := metrics.ResultOK
		if ok {
			sum.Successful++
		} else {
			sum.Failed++
			result = metrics.ResultFailed
		}
		if d.Metrics != nil {
			d.Metrics.Countries.WithLabelValues(result).Inc()
		}
	}

	sum.GlobalPath = d.buildGlobal()

	if d.index != nil {
		path, err := d.index.Write(d.Config.DataDir)
		if err != nil {
			log.Error().Err(err).Msg("Failed to write index")
		} else {
			d.written = append(d.written, path)
			sum.IndexPath = path
			log.Info().Str("path", topology.DisplayPath(path, d.root)).Int("entries", d.index.Len()).Msg("Index updated")
		}
	}

	d.finishRun(ctx, sum)
	sum.Files = d.written

	log.Info().
		Int("successful", sum.Successful).
		Int("failed", sum.Failed).
		Str("data_dir", d.Config.DataDir).
		Msg("Processing complete")

	return sum, nil
}

func (d *Downloader) prepare(list []countries.Country) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.RunID == "" {
		d.RunID = uuid.NewString()
	}

	d.root = filepath.Dir(filepath.Clean(d.Config.DataDir))
	d.today = d.Now().UTC()
	d.iso3ByISO2 = countries.ISO3ByISO2(list)
	d.country = simplify.New(d.Config.SimplifyTolerance, d.Config.Precision)
	d.global = simplify.New(d.Config.Global.SimplifyTolerance, d.Config.Global.Precision)
	d.countryLimiter = newLimiter(d.Config.RateLimitDelay)
	d.yearLimiter = newLimiter(d.Config.RetryDelay)
	d.combined = nil
	d.written = nil

	d.index = nil
	if d.Config.BuildIndex {
		d.index = index.NewBuilder(d.ReleaseTag, d.RunID, d.root)
		if d.Config.CDNBase != "" {
			d.index.CDNBase = d.Config.CDNBase
		}
		d.index.Now = d.Now
	}
}

// newLimiter spaces events at least every apart; zero disables pacing.
func newLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

func (d *Downloader) mergeInto(agg *merge.Aggregate, features []geo.Feature, src merge.Source) merge.Stats {
	st := agg.Merge(features, src)
	if d.Metrics != nil {
		d.Metrics.ObserveMerge(src.Label, st)
	}
	return st
}

func (d *Downloader) simplifyFile(path string, s *simplify.Simplifier) {
	st, err := s.SimplifyFile(path, simplify.FileOptions{Root: d.root, Now: d.Now})
	if err != nil {
		log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Unable to simplify dataset")
		return
	}

	if st.ReportWritten {
		d.written = append(d.written, simplify.ReportPath(path))
	}
	if d.Metrics != nil {
		for _, it := range st.Items {
			d.Metrics.SimplifyFailures.WithLabelValues(string(it.Reason)).Inc()
		}
	}

	log.Debug().
		Str("file", filepath.Base(path)).
		Int64("original_size", st.OriginalSize).
		Int64("new_size", st.NewSize).
		Int("unsimplified", st.Unsimplified).
		Msg("Simplified dataset")
}

func (d *Downloader) startRun(ctx context.Context) {
	if d.State == nil {
		return
	}
	if err := d.State.StartRun(ctx, d.RunID, d.ReleaseTag, d.Now()); err != nil {
		log.Warn().Err(err).Msg("Failed to record run start")
	}
}

func (d *Downloader) finishRun(ctx context.Context, sum Summary) {
	if d.Metrics != nil {
		d.Metrics.LastRunTimestamp.Set(float64(d.Now().Unix()))
	}
	if d.State == nil {
		return
	}
	if err := d.State.FinishRun(ctx, d.RunID, d.Now(), sum.Successful, sum.Failed); err != nil {
		log.Warn().Err(err).Msg("Failed to record run result")
	}
}
