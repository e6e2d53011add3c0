package shape

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

func square(x0, y0, side float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x0 + side, y0}, {x0 + side, y0 + side}, {x0, y0 + side}, {x0, y0}}}
}

func circle(r float64, n int) orb.Polygon {
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{r * math.Cos(a), r * math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

func TestCompute_Square(t *testing.T) {
	m := Compute(square(0, 0, 10))
	if m.AreaM2 != 100 {
		t.Errorf("area: got %v, want 100", m.AreaM2)
	}
	if m.PerimeterM != 40 {
		t.Errorf("perimeter: got %v, want 40", m.PerimeterM)
	}
	if math.Abs(m.LSI-1) > 1e-12 {
		t.Errorf("LSI: got %v, want 1", m.LSI)
	}
	if math.Abs(m.RPOC-1) > 1e-12 {
		t.Errorf("RPOC: got %v, want 1", m.RPOC)
	}
}

func TestCompute_Circle(t *testing.T) {
	// LSI is normalised to the square, so a disc scores sqrt(pi)/2
	m := Compute(circle(50, 256))
	if want := math.Sqrt(math.Pi) / 2; math.Abs(m.LSI-want) > 1e-3 {
		t.Errorf("LSI: got %v, want %v", m.LSI, want)
	}
	if math.Abs(m.RPOC-1) > 1e-9 {
		t.Errorf("RPOC: got %v, want 1", m.RPOC)
	}
}

func TestCompute_HoleCountsInPerimeter(t *testing.T) {
	p := square(0, 0, 10)
	p = append(p, orb.Ring{{4, 4}, {4, 6}, {6, 6}, {6, 4}, {4, 4}})
	m := Compute(p)
	if m.AreaM2 != 96 {
		t.Errorf("area: got %v, want 96", m.AreaM2)
	}
	if m.PerimeterM != 48 {
		t.Errorf("perimeter: got %v, want 48", m.PerimeterM)
	}
	if math.Abs(m.RPOC-1.2) > 1e-12 {
		t.Errorf("RPOC: got %v, want 1.2", m.RPOC)
	}
}

func TestScenario_ElongatedConcaveCandidate(t *testing.T) {
	// area 1000 m2, perimeter 400 m, hull perimeter 200 m
	lsi := LSI(400, 1000)
	rpoc := RPOC(400, 200)
	if want := 400 / (4 * math.Sqrt(1000)); math.Abs(lsi-want) > 1e-12 {
		t.Errorf("LSI: got %v, want %v", lsi, want)
	}
	if rpoc != 2 {
		t.Errorf("RPOC: got %v, want 2", rpoc)
	}

	m := Metrics{AreaM2: 1000, PerimeterM: 400, HullPerimeterM: 200, LSI: lsi, RPOC: rpoc}
	tests := []struct {
		name   string
		limits Limits
		want   bool
	}{
		{"local thresholds", Limits{MaxLSI: 2.5, MaxRPOC: 1.8}, false},
		{"hosted thresholds", Limits{MaxLSI: 3.0, MaxRPOC: 1.8}, false},
		{"loose LSI still fails RPOC", Limits{MaxLSI: 3.2, MaxRPOC: 1.8}, false},
		{"loose both", Limits{MaxLSI: 3.2, MaxRPOC: 2.0}, true},
	}
	for _, tt := range tests {
		if got := tt.limits.Accept(m); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDegenerateGeometry(t *testing.T) {
	tests := []struct {
		name string
		poly orb.Polygon
	}{
		{"empty", orb.Polygon{}},
		{"collinear", orb.Polygon{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}},
		{"single point", orb.Polygon{{{3, 3}, {3, 3}, {3, 3}, {3, 3}}}},
	}
	limits := Limits{MaxLSI: 3, MaxRPOC: 1.8}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Compute(tt.poly)
			if !m.Degenerate() {
				t.Errorf("expected sentinel, got LSI=%v RPOC=%v", m.LSI, m.RPOC)
			}
			if limits.Accept(m) {
				t.Error("degenerate polygon accepted")
			}
		})
	}
	if got := LSI(10, 0); got != Sentinel {
		t.Errorf("LSI with zero area: got %v, want %v", got, Sentinel)
	}
	if got := RPOC(10, -1); got != Sentinel {
		t.Errorf("RPOC with negative hull perimeter: got %v, want %v", got, Sentinel)
	}
	if (Limits{MaxLSI: 3, MaxRPOC: 1.8}).Accept(Metrics{LSI: Sentinel, RPOC: 1}) {
		t.Error("sentinel LSI must fail default limits")
	}
}

func TestRectilinearLSIAtLeastOne(t *testing.T) {
	// every polygon traced from a mask is rectilinear, for which LSI >= 1
	rng := rand.New(rand.NewSource(7))
	tr := raster.NorthUp(0, 0, 10)
	for trial := 0; trial < 20; trial++ {
		m := raster.NewMask(12, 12, tr, "")
		for i := range m.Data {
			m.Data[i] = rng.Float64() < 0.6
		}
		for _, r := range raster.Vectorize(m, raster.FourConnected) {
			met := Compute(r.Polygon)
			if met.LSI < 1-1e-12 {
				t.Fatalf("trial %d region %d: LSI %v < 1", trial, r.ID, met.LSI)
			}
			if met.RPOC < 1-1e-12 {
				t.Fatalf("trial %d region %d: RPOC %v < 1", trial, r.ID, met.RPOC)
			}
		}
	}
}

func TestRPOCAtLeastOne_RandomStars(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		n := 5 + rng.Intn(20)
		ring := make(orb.Ring, 0, n+1)
		for i := 0; i < n; i++ {
			a := 2 * math.Pi * float64(i) / float64(n)
			r := 10 + 40*rng.Float64()
			ring = append(ring, orb.Point{r * math.Cos(a), r * math.Sin(a)})
		}
		ring = append(ring, ring[0])
		m := Compute(orb.Polygon{ring})
		if m.RPOC < 1-1e-12 {
			t.Fatalf("trial %d: RPOC %v < 1", trial, m.RPOC)
		}
	}
}

func TestConvexHull(t *testing.T) {
	pts := []orb.Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {2, 2}, {2, 0}, {1, 3}}
	hull := ConvexHull(pts)
	if len(hull) != 5 {
		t.Fatalf("hull points: got %d, want 5 (closed square)", len(hull))
	}
	if hull[0] != hull[len(hull)-1] {
		t.Error("hull not closed")
	}
	if hull.Orientation() != orb.CCW {
		t.Error("hull not counter-clockwise")
	}
}
