package merge

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/ipcareas/internal/geo"
)

func square(x float64) orb.Polygon {
	return orb.Polygon{{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0}}}
}

func feature(id int, props geo.Properties) geo.Feature {
	p := geo.Properties{
		geo.PropID:   geo.Int(id),
		geo.PropISO3: geo.String("KEN"),
	}
	for k, v := range props {
		p[k] = v
	}
	return geo.Feature{Geometry: square(float64(id)), Properties: p}
}

func TestMergeIdempotent(t *testing.T) {
	batch := []geo.Feature{
		feature(1, nil),
		feature(2, nil),
		feature(3, nil),
	}

	agg := New()
	first := agg.Merge(batch, Source{Label: "download", Priority: PriorityDownload, Year: 2024})
	assert.Equal(t, Stats{Added: 3}, first)
	assert.True(t, first.Changed())

	second := agg.Merge(batch, Source{Label: "download", Priority: PriorityDownload, Year: 2024})
	assert.Equal(t, Stats{Skipped: 3}, second)
	assert.False(t, second.Changed())
	assert.Equal(t, 3, agg.Len())
}

func TestMergePriorityWinsInEitherOrder(t *testing.T) {
	low := feature(7, geo.Properties{"title": geo.String("legacy"), "to": geo.String("2030-01-01")})
	high := feature(7, geo.Properties{"title": geo.String("fresh"), "to": geo.String("2020-01-01")})

	lowSrc := Source{Label: "legacy", Priority: PriorityLegacyCombined, Year: 2024}
	highSrc := Source{Label: "download", Priority: PriorityDownload, Year: 2024}

	tests := []struct {
		name  string
		steps []func(*Aggregate) Stats
		stats []Stats
	}{
		{
			name: "low then high",
			steps: []func(*Aggregate) Stats{
				func(a *Aggregate) Stats { return a.Merge([]geo.Feature{low}, lowSrc) },
				func(a *Aggregate) Stats { return a.Merge([]geo.Feature{high}, highSrc) },
			},
			stats: []Stats{{Added: 1}, {Updated: 1}},
		},
		{
			name: "high then low",
			steps: []func(*Aggregate) Stats{
				func(a *Aggregate) Stats { return a.Merge([]geo.Feature{high}, highSrc) },
				func(a *Aggregate) Stats { return a.Merge([]geo.Feature{low}, lowSrc) },
			},
			stats: []Stats{{Added: 1}, {Skipped: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := New()
			for i, step := range tt.steps {
				assert.Equal(t, tt.stats[i], step(agg))
			}

			out := agg.Flatten()
			require.Len(t, out, 1)
			assert.Equal(t, "fresh", out[0].Properties.Title())

			e, ok := agg.entries[agg.Keys()[0]]
			require.True(t, ok)
			assert.Equal(t, "download", e.SourceLabel)
			assert.Equal(t, PriorityDownload, e.Priority)
		})
	}
}

func TestMergeLaterYearWinsAtEqualPriority(t *testing.T) {
	agg := New()
	agg.Merge([]geo.Feature{feature(1, geo.Properties{"title": geo.String("2025")})}, Source{Priority: PriorityExisting, Year: 2025})
	stats := agg.Merge([]geo.Feature{feature(1, geo.Properties{"title": geo.String("2024")})}, Source{Priority: PriorityExisting, Year: 2024})

	assert.Equal(t, Stats{Skipped: 1}, stats)
	assert.Equal(t, "2025", agg.Flatten()[0].Properties.Title())
}

func TestMergeFeatureYearOverridesSourceYear(t *testing.T) {
	agg := New()
	agg.Merge([]geo.Feature{feature(1, geo.Properties{"year": geo.Int(2023)})}, Source{Year: 2025})
	agg.Merge([]geo.Feature{feature(2, geo.Properties{"year": geo.String("n/a")})}, Source{Year: 2022})
	agg.Merge([]geo.Feature{feature(3, nil)}, Source{})

	assert.Equal(t, []int{2022, 2023}, agg.Years())
}

func TestMergeDateTieBreakIsOrderIndependent(t *testing.T) {
	candidates := []geo.Feature{
		feature(5, geo.Properties{"title": geo.String("a"), "to": geo.String("2024-06-30"), "from": geo.String("2024-01-01")}),
		feature(5, geo.Properties{"title": geo.String("b"), "to": geo.String("2024-06-30"), "from": geo.String("2024-03-01")}),
		feature(5, geo.Properties{"title": geo.String("c"), "to": geo.String("2024-03-31")}),
	}

	perms := [][]int{
		{0, 1, 2}, {0, 2, 1},
		{1, 0, 2}, {1, 2, 0},
		{2, 0, 1}, {2, 1, 0},
	}
	for _, perm := range perms {
		agg := New()
		for _, i := range perm {
			agg.Merge([]geo.Feature{candidates[i]}, Source{Priority: PriorityDownload, Year: 2024})
		}
		out := agg.Flatten()
		require.Len(t, out, 1)
		assert.Equal(t, "b", out[0].Properties.Title(), "order %v", perm)
	}
}

func TestMergeDatePrecedence(t *testing.T) {
	tests := []struct {
		name      string
		incumbent geo.Properties
		candidate geo.Properties
		replaced  bool
	}{
		{
			name:      "present to beats absent",
			incumbent: geo.Properties{},
			candidate: geo.Properties{"to": geo.String("2001-01-01")},
			replaced:  true,
		},
		{
			name:      "absent to loses",
			incumbent: geo.Properties{"to": geo.String("2001-01-01")},
			candidate: geo.Properties{"from": geo.String("2030-01-01")},
			replaced:  false,
		},
		{
			name:      "updated_at decides when windows match",
			incumbent: geo.Properties{"to": geo.String("2024-12-31"), "updated_at": geo.String("2025-01-05")},
			candidate: geo.Properties{"to": geo.String("2024-12-31"), "updated_at": geo.String("2025-02-01T08:00:00Z")},
			replaced:  true,
		},
		{
			name:      "unparseable date counts as absent",
			incumbent: geo.Properties{"to": geo.String("2024-12-31")},
			candidate: geo.Properties{"to": geo.String("end of year")},
			replaced:  false,
		},
		{
			name:      "full tie keeps incumbent",
			incumbent: geo.Properties{"to": geo.String("2024-12-31")},
			candidate: geo.Properties{"to": geo.String("2024-12-31T00:00:00Z")},
			replaced:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.incumbent["title"] = geo.String("incumbent")
			tt.candidate["title"] = geo.String("candidate")

			agg := New()
			agg.Merge([]geo.Feature{feature(9, tt.incumbent)}, Source{Priority: PriorityDownload})
			stats := agg.Merge([]geo.Feature{feature(9, tt.candidate)}, Source{Priority: PriorityDownload})

			want := "incumbent"
			if tt.replaced {
				want = "candidate"
				assert.Equal(t, Stats{Updated: 1}, stats)
			} else {
				assert.Equal(t, Stats{Skipped: 1}, stats)
			}
			assert.Equal(t, want, agg.Flatten()[0].Properties.Title())
		})
	}
}

func TestFlattenDeterministic(t *testing.T) {
	batch := []geo.Feature{feature(3, nil), feature(1, nil), feature(2, nil)}
	reversed := []geo.Feature{batch[2], batch[1], batch[0]}

	a, b := New(), New()
	a.Merge(batch, Source{Priority: PriorityDownload})
	b.Merge(reversed, Source{Priority: PriorityDownload})

	assert.Equal(t, a.Keys(), b.Keys())
	assert.Equal(t, a.Flatten(), b.Flatten())
	assert.Equal(t, []string{"id::ken::1", "id::ken::2", "id::ken::3"}, a.Keys())
}

func TestMergeDoesNotAliasInput(t *testing.T) {
	f := feature(1, geo.Properties{"title": geo.String("before")})

	agg := New()
	agg.Merge([]geo.Feature{f}, Source{Priority: PriorityDownload})

	f.Properties["title"] = geo.String("after")
	f.Geometry.(orb.Polygon)[0][0] = orb.Point{99, 99}

	out := agg.Flatten()
	assert.Equal(t, "before", out[0].Properties.Title())
	assert.Equal(t, orb.Point{1, 0}, out[0].Geometry.(orb.Polygon)[0][0])

	out[0].Properties["title"] = geo.String("mutated")
	assert.Equal(t, "before", agg.Flatten()[0].Properties.Title())
}
