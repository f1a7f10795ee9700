package countries

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = "\ufeff Alpha_2_Code ,Alpha_3_Code,English_Short_Name,OCHA_Region\n" +
	"KE,KEN,Kenya,ROSEA\n" +
	"ET,ETH,Ethiopia,rosea\n" +
	"SO,SOM,,ROSEA\n" +
	"HT,HTI,Haiti,ROLAC\n" +
	",XXX,Nowhere,ROSEA\n" +
	"KE,KEN,Kenya (Republic of),ROSEA\n"

func TestRead(t *testing.T) {
	tests := []struct {
		name    string
		region  string
		iso2    []string
		skipped int
	}{
		{name: "all regions", region: "", iso2: []string{"ET", "HT", "KE", "SO"}, skipped: 1},
		{name: "wildcard", region: "*", iso2: []string{"ET", "HT", "KE", "SO"}, skipped: 1},
		{name: "keyword all", region: " ALL ", iso2: []string{"ET", "HT", "KE", "SO"}, skipped: 1},
		{name: "region is case insensitive", region: "RoSeA", iso2: []string{"ET", "KE", "SO"}, skipped: 1},
		{name: "other region", region: "rolac", iso2: []string{"HT"}, skipped: 0},
		{name: "unknown region", region: "roap", iso2: nil, skipped: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(strings.NewReader(table), tt.region)
			require.NoError(t, err)

			var iso2 []string
			for _, c := range got.Countries {
				iso2 = append(iso2, c.ISO2)
			}
			assert.Equal(t, tt.iso2, iso2)
			assert.Equal(t, tt.skipped, got.Skipped)
		})
	}
}

func TestReadRowDetails(t *testing.T) {
	got, err := Read(strings.NewReader(table), "rosea")
	require.NoError(t, err)
	require.Len(t, got.Countries, 3)

	assert.Equal(t, Country{Name: "Ethiopia", ISO2: "ET", ISO3: "ETH", OCHARegion: "rosea"}, got.Countries[0])
	assert.Equal(t, "Kenya (Republic of)", got.Countries[1].Name)
	assert.Equal(t, "SO", got.Countries[2].Name)
}

func TestReadEmpty(t *testing.T) {
	got, err := Read(strings.NewReader(""), "")
	require.NoError(t, err)
	assert.Empty(t, got.Countries)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countries.csv")
	require.NoError(t, os.WriteFile(path, []byte(table), 0644))

	got, err := Load(path, "rolac")
	require.NoError(t, err)
	require.Len(t, got.Countries, 1)
	assert.Equal(t, "HTI", got.Countries[0].ISO3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"), "")
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	all := []Country{
		{ISO2: "ET", ISO3: "ETH"},
		{ISO2: "KE", ISO3: "KEN"},
		{ISO2: "SO", ISO3: "SOM"},
	}

	got, missing := Filter(all, nil)
	assert.Equal(t, all, got)
	assert.Empty(t, missing)

	got, missing = Filter(all, []string{"ken", "SO", "ZZ"})
	assert.Equal(t, []Country{{ISO2: "KE", ISO3: "KEN"}, {ISO2: "SO", ISO3: "SOM"}}, got)
	assert.Equal(t, []string{"ZZ"}, missing)

	got, missing = Filter(all, []string{"XX"})
	assert.Empty(t, got)
	assert.Equal(t, []string{"XX"}, missing)
}

func TestISO3ByISO2(t *testing.T) {
	got := ISO3ByISO2([]Country{{ISO2: "ke", ISO3: "ken"}, {ISO2: "ET", ISO3: "ETH"}})
	assert.Equal(t, map[string]string{"KE": "KEN", "ET": "ETH"}, got)
}
