package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/ipcareas/internal/config"
)

func TestSplitCodes(t *testing.T) {
	assert.Equal(t, []string{"UG", "SO", "KEN"}, splitCodes([]string{"UG,SO", " KEN ", ","}))
	assert.Nil(t, splitCodes(nil))
}

func TestApplyKeepsUnsetOptions(t *testing.T) {
	cfg := config.Default()
	Options{}.apply(cfg)
	assert.Equal(t, config.Default(), cfg)
}

func TestApplyOverrides(t *testing.T) {
	region := "all"
	precision := 0
	tolerance := 0.0
	timeout := 5 * time.Second

	cfg := config.Default()
	Options{
		Years:             []int{2024, 2023},
		Countries:         []string{"ug,so"},
		OCHARegion:        &region,
		Precision:         &precision,
		SimplifyTolerance: &tolerance,
		RequestTimeout:    &timeout,
		SkipIndex:         true,
		WriteYearFiles:    true,
		PublishAccessKey:  "access",
	}.apply(cfg)

	assert.Equal(t, []int{2024, 2023}, cfg.Years)
	assert.Equal(t, []string{"ug", "so"}, cfg.Countries)
	assert.Equal(t, "all", cfg.OCHARegion)
	assert.Zero(t, cfg.Precision)
	assert.Zero(t, cfg.SimplifyTolerance)
	assert.Equal(t, timeout, cfg.RequestTimeout)
	assert.False(t, cfg.BuildIndex)
	assert.True(t, cfg.WriteYearFiles)
	assert.Equal(t, "access", cfg.Publish.AccessKey)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("years: [2024]\ncountries: [ke]\n"), 0644))

	cfg, err := loadConfig(Options{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, []int{2024}, cfg.Years)
	assert.Equal(t, []string{"KE"}, cfg.Countries)

	negative := -1
	_, err = loadConfig(Options{ConfigFile: path, Precision: &negative})
	assert.ErrorIs(t, err, config.ErrNegativePrecision)
}
