package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/ipcareas/internal/countries"
	"github.com/woozymasta/ipcareas/internal/geo"
	"github.com/woozymasta/ipcareas/internal/topology"
)

var kenya = countries.Country{Name: "Kenya", ISO2: "KE", ISO3: "KEN"}

func fixedNow() time.Time {
	return time.Date(2025, 8, 15, 9, 30, 0, 0, time.FixedZone("EAT", 3*3600))
}

func TestAddAndDocument(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")

	combined := filepath.Join(dataDir, "KEN", "KEN_combined_areas.topojson")
	require.NoError(t, topology.Save(combined, []geo.Feature{
		{Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, Properties: geo.Properties{"id": geo.Int(1)}},
		{Properties: geo.Properties{"id": geo.Int(2)}},
	}))

	b := NewBuilder("v1.2.3", "run-1", root)
	b.Now = fixedNow

	b.Add(Item{Country: kenya, Year: 2025, Path: filepath.Join(dataDir, "KEN", "KEN_2025_areas.topojson"), FeatureCount: 7, Variant: VariantYear, UpdatedAt: "2025-07-01T00:00:00Z"})
	b.Add(Item{Country: kenya, Year: 2024, Path: filepath.Join(dataDir, "KEN", "KEN_2024_areas.topojson"), Variant: VariantYear})
	b.Add(Item{Country: kenya, Path: combined, Variant: VariantCombined})
	b.Add(Item{Country: countries.Global, Year: 2025, Path: filepath.Join(dataDir, "global_areas.topojson"), FeatureCount: 3, Variant: VariantGlobal})
	b.Add(Item{Country: countries.Country{ISO2: "ET", ISO3: "ETH"}, Path: filepath.Join(dataDir, "ETH", "ETH_combined_areas.topojson"), FeatureCount: 1, Variant: VariantCombined})

	assert.Equal(t, 5, b.Len())

	doc := b.Document()
	assert.Equal(t, "2025-08-15T06:30:00Z", doc.GeneratedAt)
	assert.Equal(t, "v1.2.3", doc.CDNReleaseTag)
	assert.Equal(t, 5, doc.TotalFiles)

	var names []string
	for _, e := range doc.Items {
		names = append(names, e.FileName)
	}
	assert.Equal(t, []string{
		"global_areas.topojson",
		"ETH_combined_areas.topojson",
		"KEN_combined_areas.topojson",
		"KEN_2024_areas.topojson",
		"KEN_2025_areas.topojson",
	}, names)

	global := doc.Items[0]
	assert.Equal(t, "Global", global.Country)
	assert.Empty(t, global.ISO3)
	assert.Equal(t, "https://cdn.jsdelivr.net/gh/im4sea/ipc-areas@v1.2.3/data/global_areas.topojson", global.CDNURL)

	eth := doc.Items[1]
	assert.Equal(t, "ET", eth.Country)

	kenCombined := doc.Items[2]
	require.NotNil(t, kenCombined.FeatureCount)
	assert.Equal(t, 2, *kenCombined.FeatureCount)
	assert.Equal(t, "data/KEN/KEN_combined_areas.topojson", kenCombined.RelativePath)
	assert.Equal(t, "2025-08-15T06:30:00Z", kenCombined.UpdatedAt)

	ken2024 := doc.Items[3]
	assert.Nil(t, ken2024.FeatureCount, "missing file")

	ken2025 := doc.Items[4]
	assert.Equal(t, "2025-07-01T00:00:00Z", ken2025.UpdatedAt)
}

func TestEntryJSON(t *testing.T) {
	count := 4
	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name: "year",
			entry: Entry{
				Country: "Kenya", ISO2: "KE", ISO3: "KEN", Year: 2025,
				RelativePath: "data/KEN/KEN_2025_areas.topojson", FileName: "KEN_2025_areas.topojson",
				FeatureCount: &count, CDNURL: "u", UpdatedAt: "t", Variant: VariantYear,
			},
			want: `{"country":"Kenya","iso2":"KE","iso3":"KEN","year":2025,
				"relative_path":"data/KEN/KEN_2025_areas.topojson","file_name":"KEN_2025_areas.topojson",
				"feature_count":4,"cdn_url":"u","updated_at":"t","variant":"year"}`,
		},
		{
			name: "combined has null year",
			entry: Entry{
				Country: "Kenya", ISO2: "KE", ISO3: "KEN",
				RelativePath: "r", FileName: "f", CDNURL: "u", UpdatedAt: "t", Variant: VariantCombined,
			},
			want: `{"country":"Kenya","iso2":"KE","iso3":"KEN","year":null,"relative_path":"r",
				"file_name":"f","feature_count":null,"cdn_url":"u","updated_at":"t","variant":"combined"}`,
		},
		{
			name: "global omits codes and year",
			entry: Entry{
				Country: "Global", ISO2: "GL", ISO3: "GLB", Year: 2025,
				RelativePath: "r", FileName: "f", FeatureCount: &count, CDNURL: "u", UpdatedAt: "t", Variant: VariantGlobal,
			},
			want: `{"country":"Global","relative_path":"r","file_name":"f","feature_count":4,
				"cdn_url":"u","updated_at":"t","variant":"global"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.entry)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()

	b := NewBuilder("main", "0b7d5f9e-0000-4000-8000-000000000000", dir)
	b.Now = fixedNow
	b.Add(Item{Country: kenya, Year: 2025, Path: filepath.Join(dir, "KEN", "KEN_2025_areas.topojson"), FeatureCount: 1, Variant: VariantYear})

	path, err := b.Write(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"cdn_release_tag\": \"main\"")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "0b7d5f9e-0000-4000-8000-000000000000", doc["run_id"])
	assert.EqualValues(t, 1, doc["total_files"])
	assert.Len(t, doc["items"], 1)
}

func TestEmptyDocument(t *testing.T) {
	data, err := json.Marshal(NewBuilder("main", "", "").Document())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"items":[]`)
	assert.NotContains(t, string(data), "run_id")
}
