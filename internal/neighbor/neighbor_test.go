package neighbor

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/tambak-detect/internal/pond"
)

func square(x0, y0, side float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x0 + side, y0}, {x0 + side, y0 + side}, {x0, y0 + side}, {x0, y0}}}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b orb.Polygon
		want float64
	}{
		{"apart on x", square(0, 0, 10), square(30, 0, 10), 20},
		{"diagonal", square(0, 0, 10), square(13, 14, 10), 5},
		{"touching", square(0, 0, 10), square(10, 0, 10), 0},
		{"overlapping", square(0, 0, 10), square(5, 5, 10), 0},
		{"nested", square(0, 0, 100), square(40, 40, 10), 0},
		{"crossing bars", orb.Polygon{{{0, 4}, {20, 4}, {20, 6}, {0, 6}, {0, 4}}},
			orb.Polygon{{{9, -5}, {11, -5}, {11, 15}, {9, 15}, {9, -5}}}, 0},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
		if got := Distance(tt.b, tt.a); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s (swapped): got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDistanceInsideHole(t *testing.T) {
	donut := orb.Polygon{
		{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}},
		{{20, 20}, {20, 80}, {80, 80}, {80, 20}, {20, 20}},
	}
	island := square(45, 45, 10)
	assert.InDelta(t, 25, Distance(donut, island), 1e-9)
}

func TestIsolatedCandidateDropped(t *testing.T) {
	cluster := []pond.Candidate{
		pond.NewCandidate(1, 1, square(0, 0, 40)),
		pond.NewCandidate(1, 2, square(60, 0, 40)),
		pond.NewCandidate(1, 3, square(0, 60, 40)),
	}
	lonely := pond.NewCandidate(1, 4, square(2000, 2000, 40))
	cands := append(cluster, lonely)

	res, err := Filter(context.Background(), cands, DefaultOptions())
	require.NoError(t, err)

	ids := func(cs []pond.Candidate) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}
	if diff := cmp.Diff([]string{"r1-1", "r1-2", "r1-3"}, ids(res.Accepted)); diff != "" {
		t.Errorf("accepted mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "r1-4", res.Rejected[0].ID)
	assert.Equal(t, 0, *res.Rejected[0].NeighborCount)
	assert.Equal(t, 2, *res.Accepted[0].NeighborCount)
}

func TestDistanceThresholdInclusive(t *testing.T) {
	a := pond.NewCandidate(1, 1, square(0, 0, 20))
	atLimit := pond.NewCandidate(1, 2, square(120, 0, 20))
	beyond := pond.NewCandidate(1, 3, square(240.5, 0, 20))

	counts, err := Count(context.Background(), []pond.Candidate{a, atLimit, beyond}, 100, false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 0}, counts)
}

func TestCountSelfIsOffByOne(t *testing.T) {
	cands := []pond.Candidate{
		pond.NewCandidate(1, 1, square(0, 0, 20)),
		pond.NewCandidate(1, 2, square(50, 0, 20)),
		pond.NewCandidate(1, 3, square(5000, 0, 20)),
	}
	strict, err := Filter(context.Background(), cands, Options{DistanceM: 100, MinNeighbors: 1})
	require.NoError(t, err)
	selfJoin, err := Filter(context.Background(), cands, Options{DistanceM: 100, MinNeighbors: 2, CountSelf: true})
	require.NoError(t, err)

	require.Len(t, strict.Accepted, 2)
	require.Len(t, selfJoin.Accepted, 2)
	for i := range strict.Accepted {
		assert.Equal(t, strict.Accepted[i].ID, selfJoin.Accepted[i].ID)
		assert.Equal(t, *strict.Accepted[i].NeighborCount+1, *selfJoin.Accepted[i].NeighborCount)
	}
}

func TestFilterEmptyAndInvalid(t *testing.T) {
	res, err := Filter(context.Background(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Accepted)

	_, err = Filter(context.Background(), nil, Options{DistanceM: -1})
	assert.Error(t, err)
}

func TestCountMatchesPairwiseScan(t *testing.T) {
	// enough entries to split R-tree nodes several times
	var cands []pond.Candidate
	seq := 0
	for row := 0; row < 20; row++ {
		for col := 0; col < 20; col++ {
			seq++
			x := float64(col*70) + float64((row*7)%13)
			y := float64(row*90) + float64((col*5)%11)
			cands = append(cands, pond.NewCandidate(1, seq, square(x, y, 30)))
		}
	}

	counts, err := Count(context.Background(), cands, 45, false)
	require.NoError(t, err)
	require.Len(t, counts, len(cands))

	for i := range cands {
		want := 0
		for j := range cands {
			if i != j && Distance(cands[i].Geometry, cands[j].Geometry) <= 45 {
				want++
			}
		}
		if counts[i] != want {
			t.Errorf("%s: got %d neighbours, want %d", cands[i].ID, counts[i], want)
		}
	}
}
