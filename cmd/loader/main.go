package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/woozymasta/ipcareas/internal/config"
	"github.com/woozymasta/ipcareas/internal/ipc"
	"github.com/woozymasta/ipcareas/internal/logger"
	"github.com/woozymasta/ipcareas/internal/metrics"
	"github.com/woozymasta/ipcareas/internal/processor"
	"github.com/woozymasta/ipcareas/internal/publish"
	"github.com/woozymasta/ipcareas/internal/release"
	"github.com/woozymasta/ipcareas/internal/state"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Options overrides the configuration file. Unset pointer options keep the file value.
type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile        string         `short:"c" long:"config"             env:"CONFIG_FILE"        description:"Path to configuration file"`
	Years             []int          `short:"y" long:"years"              env:"YEARS"              env-delim:"," description:"Assessment years to fetch (repeatable)"`
	Countries         []string       `short:"C" long:"countries"          env:"COUNTRIES"          env-delim:"," description:"Restrict processing to ISO2/ISO3 country codes"`
	OCHARegion        *string        `short:"r" long:"ocha-region"        env:"OCHA_REGION"        description:"OCHA region filter, '*' or 'all' for every region"`
	DataDir           *string        `short:"d" long:"data-dir"           env:"DATA_DIR"           description:"Output data directory"`
	Precision         *int           `short:"p" long:"precision"          env:"PRECISION"          description:"Decimal places kept in country datasets"`
	SimplifyTolerance *float64       `short:"t" long:"simplify-tolerance" env:"SIMPLIFY_TOLERANCE" description:"Simplification tolerance for country datasets"`
	RequestTimeout    *time.Duration `long:"request-timeout"              env:"REQUEST_TIMEOUT"    description:"Timeout of each API request"`
	RetryDelay        *time.Duration `long:"retry-delay"                  env:"RETRY_DELAY"        description:"Minimum delay between API requests"`
	RateLimitDelay    *time.Duration `long:"rate-limit-delay"             env:"RATE_LIMIT_DELAY"   description:"Minimum delay between countries"`
	SkipIndex         bool           `long:"skip-index"                   description:"Do not write index.json"`
	WriteYearFiles    bool           `long:"write-year-files"             description:"Also write one dataset per downloaded year"`
	NoPublish         bool           `long:"no-publish"                   description:"Skip upload to object storage"`
	PublishAccessKey  string         `long:"publish-access-key"           env:"PUBLISH_ACCESS_KEY" description:"Object storage access key"`
	PublishSecretKey  string         `long:"publish-secret-key"           env:"PUBLISH_SECRET_KEY" description:"Object storage secret key"`
}

func main() {
	_ = godotenv.Load(".env")

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	key, err := ipc.ResolveKey(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Missing API key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, key, opts.NoPublish); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Msg("Interrupted")
		} else {
			log.Error().Err(err).Msg("Loader failed")
		}
		stop()
		os.Exit(1)
	}

	log.Info().Msg("Loader finished successfully")
}

func loadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	opts.apply(cfg)
	cfg.Normalize(time.Now())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o Options) apply(cfg *config.Config) {
	if len(o.Years) > 0 {
		cfg.Years = o.Years
	}
	if len(o.Countries) > 0 {
		cfg.Countries = splitCodes(o.Countries)
	}
	if o.OCHARegion != nil {
		cfg.OCHARegion = *o.OCHARegion
	}
	if o.DataDir != nil {
		cfg.DataDir = *o.DataDir
	}
	if o.Precision != nil {
		cfg.Precision = *o.Precision
	}
	if o.SimplifyTolerance != nil {
		cfg.SimplifyTolerance = *o.SimplifyTolerance
	}
	if o.RequestTimeout != nil {
		cfg.RequestTimeout = *o.RequestTimeout
	}
	if o.RetryDelay != nil {
		cfg.RetryDelay = *o.RetryDelay
	}
	if o.RateLimitDelay != nil {
		cfg.RateLimitDelay = *o.RateLimitDelay
	}
	if o.SkipIndex {
		cfg.BuildIndex = false
	}
	if o.WriteYearFiles {
		cfg.WriteYearFiles = true
	}
	if o.PublishAccessKey != "" {
		cfg.Publish.AccessKey = o.PublishAccessKey
	}
	if o.PublishSecretKey != "" {
		cfg.Publish.SecretKey = o.PublishSecretKey
	}
}

// splitCodes accepts both repeated flags and comma separated lists.
func splitCodes(values []string) []string {
	var out []string
	for _, v := range values {
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				out = append(out, code)
			}
		}
	}
	return out
}

func run(ctx context.Context, cfg *config.Config, key string, noPublish bool) error {
	tag := release.NewResolver(".").Resolve(ctx)

	d := processor.New(cfg, ipc.NewClient(cfg.APIURL, key, cfg.RequestTimeout), tag)
	d.Metrics = metrics.New()

	if cfg.StateDB != "" {
		store, err := state.Open(cfg.StateDB)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.StateDB).Msg("State store unavailable, continuing without it")
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close state store")
				}
			}()
			d.State = store
		}
	}

	sum, err := d.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.Publish.Enabled() && !noPublish {
		publishFiles(ctx, cfg, tag, sum.Files, d.Metrics)
	}

	if cfg.MetricsFile != "" {
		if err := d.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn().Err(err).Msg("Failed to write metrics")
		}
	}

	return nil
}

func publishFiles(ctx context.Context, cfg *config.Config, tag string, files []string, m *metrics.Metrics) {
	uploader, err := publish.New(cfg.Publish)
	if err != nil {
		log.Warn().Err(err).Msg("Publishing disabled")
		return
	}

	res, err := uploader.Publish(ctx, filepath.Dir(filepath.Clean(cfg.DataDir)), tag, files)
	if err != nil {
		log.Warn().Err(err).Msg("Publishing failed")
	}
	m.PublishedObjects.Add(float64(res.Uploaded))

	log.Info().
		Str("bucket", cfg.Publish.Bucket).
		Str("release", tag).
		Int("uploaded", res.Uploaded).
		Int("failed", res.Failed).
		Msg("Published artefacts")
}
