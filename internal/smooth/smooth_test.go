package smooth

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

func square(x0, y0, side float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x0 + side, y0}, {x0 + side, y0 + side}, {x0, y0 + side}, {x0, y0}}}
}

func circle(cx, cy, r float64, n int) orb.Polygon {
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{cx + r*math.Cos(a), cy + r*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

func area(p orb.Polygon) float64 {
	return math.Abs(planar.Area(p))
}

func TestSmoothIdempotentOnConvex(t *testing.T) {
	tests := []struct {
		name string
		poly orb.Polygon
	}{
		{"circle", circle(500200, 9100200, 200, 64)},
		{"square", square(500000, 9100000, 300)},
	}
	for _, tt := range tests {
		out, err := Smooth(tt.poly, DefaultOptions())
		require.NoError(t, err, tt.name)
		before, after := area(tt.poly), area(out)
		if rel := math.Abs(after-before) / before; rel >= 0.01 {
			t.Errorf("%s: area changed by %.3f%% (%.1f -> %.1f)", tt.name, rel*100, before, after)
		}
	}
}

func TestSmoothFillsNotch(t *testing.T) {
	// 100 m square with a 2 m wide, 20 m deep slot cut into its top edge.
	notched := orb.Polygon{{
		{0, 0}, {100, 0}, {100, 100}, {51, 100}, {51, 80}, {49, 80}, {49, 100}, {0, 100}, {0, 0},
	}}
	out, err := Smooth(notched, Options{MarginM: 2, CellM: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 10000, area(out), 10000*0.005)
	assert.True(t, planar.PolygonContains(out, orb.Point{50, 90}), "slot closed")
}

func TestBufferGrowsByDistance(t *testing.T) {
	sq := square(1000, 2000, 100)
	out, err := Buffer(sq, 2, 0.5)
	require.NoError(t, err)
	want := 100*100 + 4*100*2 + math.Pi*2*2
	assert.InDelta(t, want, area(out), want*0.005)

	b := out.Bound()
	assert.InDelta(t, 998, b.Min[0], 0.51)
	assert.InDelta(t, 1102, b.Max[0], 0.51)
	assert.InDelta(t, 1998, b.Min[1], 0.51)
	assert.InDelta(t, 2102, b.Max[1], 0.51)

	// sides stay on the grid axes; only the rounded corners step
	assert.Contains(t, edges(out[0]), [2]orb.Point{{1000, 1998}, {1100, 1998}})
	assert.Contains(t, edges(out[0]), [2]orb.Point{{1102, 2000}, {1102, 2100}})
}

func edges(r orb.Ring) [][2]orb.Point {
	var out [][2]orb.Point
	for i := 0; i+1 < len(r); i++ {
		out = append(out, [2]orb.Point{r[i], r[i+1]})
	}
	return out
}

func TestFromCorner(t *testing.T) {
	r := orb.Ring{{10, 0}, {10, 10}, {0, 10}, {0, 0}, {10, 0}}
	got := fromCorner(r)
	want := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	assert.Equal(t, want, got)
	assert.Equal(t, orb.Point{10, 0}, r[0], "input untouched")
}

func TestBufferShrinkAndVanish(t *testing.T) {
	sq := square(0, 0, 40)
	out, err := Buffer(sq, -5, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 30*30, area(out), 900*0.01)

	_, err = Buffer(square(0, 0, 4), -3, 0.5)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestProcessOfVectorizedPond(t *testing.T) {
	tr := raster.NorthUp(500000, 9100000, 10)
	m := raster.NewMask(12, 12, tr, "")
	for y := 2; y < 9; y++ {
		for x := 2; x < 10; x++ {
			m.Set(x, y, true)
		}
	}
	m.Set(9, 8, false) // one stair step
	regions := raster.Vectorize(m, raster.FourConnected)
	require.Len(t, regions, 1)
	in := regions[0].Polygon

	out, err := Process(in, DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, orb.CCW, out[0].Orientation())
	assert.Greater(t, area(out), area(in))
	assert.Less(t, area(out), area(in)+2*planar.Length(in[0])+100)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.Error(t, Options{CellM: 0}.Validate())
	assert.Error(t, Options{CellM: 0.5, MarginM: -1}.Validate())
	_, err := Process(orb.Polygon{}, DefaultOptions())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSquaredDistance(t *testing.T) {
	m := raster.NewMask(5, 3, raster.NorthUp(0, 0, 1), "")
	m.Set(0, 0, true)
	d := squaredDistance(m, true)
	want := []float64{
		0, 1, 4, 9, 16,
		1, 2, 5, 10, 17,
		4, 5, 8, 13, 20,
	}
	for i := range want {
		if d[i] != want[i] {
			t.Errorf("pixel %d: got %v, want %v", i, d[i], want[i])
		}
	}
}
