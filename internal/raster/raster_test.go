package raster

import (
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// testTransform is a north-up 10 m grid anchored at a UTM-like origin.
var testTransform = NorthUp(500000, 9100000, 10)

// maskFromRows builds a mask from strings where '#' marks a set pixel.
func maskFromRows(rows ...string) *Mask {
	m := NewMask(len(rows[0]), len(rows), testTransform, "EPSG:32750")
	for y, r := range rows {
		for x, ch := range r {
			m.Set(x, y, ch == '#')
		}
	}
	return m
}

// stepGrid returns a grid with value lo left of column split and hi from it on.
func stepGrid(w, h, split int, lo, hi float64) *Grid {
	g := NewGrid(w, h, testTransform, "EPSG:32750")
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < split {
				g.Set(x, y, lo)
			} else {
				g.Set(x, y, hi)
			}
		}
	}
	return g
}

func TestGeoTransform_RoundTrip(t *testing.T) {
	tr := NorthUp(1000, 2000, 10)
	x, y := tr.ToWorld(3, 4)
	if x != 1030 || y != 1960 {
		t.Errorf("ToWorld(3,4): got (%v,%v), want (1030,1960)", x, y)
	}
	c, r := tr.ToPixel(x, y)
	if c != 3 || r != 4 {
		t.Errorf("ToPixel: got (%v,%v), want (3,4)", c, r)
	}
	if tr.PixelArea() != 100 {
		t.Errorf("PixelArea: got %v, want 100", tr.PixelArea())
	}
}

func TestGrid_ThresholdSkipsNaN(t *testing.T) {
	g := NewGrid(3, 1, testTransform, "")
	g.Data = []float64{-1, math.NaN(), 1}

	tests := []struct {
		name string
		mask *Mask
		want []bool
	}{
		{"GreaterEqual 0", g.GreaterEqual(0), []bool{false, false, true}},
		{"Less 0", g.Less(0), []bool{true, false, false}},
		{"Greater -1", g.Greater(-1), []bool{false, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				if tt.mask.Data[i] != want {
					t.Errorf("pixel %d: got %v, want %v", i, tt.mask.Data[i], want)
				}
			}
		})
	}
}

func TestGrid_Clip(t *testing.T) {
	g := NewGrid(10, 10, testTransform, "")
	for i := range g.Data {
		g.Data[i] = float64(i)
	}
	// columns 2..4, rows 1..2
	b := orb.Bound{Min: orb.Point{500020, 9099970}, Max: orb.Point{500050, 9099990}}
	c, err := g.Clip(b)
	if err != nil {
		t.Fatalf("Clip failed: %v", err)
	}
	if c.Width != 3 || c.Height != 2 {
		t.Fatalf("size: got %dx%d, want 3x2", c.Width, c.Height)
	}
	if c.At(0, 0) != 12 {
		t.Errorf("first pixel: got %v, want 12", c.At(0, 0))
	}
	x, y := c.Transform.ToWorld(0, 0)
	if x != 500020 || y != 9099990 {
		t.Errorf("origin: got (%v,%v), want (500020,9099990)", x, y)
	}

	if _, err := g.Clip(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}); err == nil {
		t.Error("expected error for disjoint bound")
	}
}

func TestMask_SetOperations(t *testing.T) {
	a := maskFromRows("##..")
	b := maskFromRows(".##.")

	or, _ := a.Or(b)
	and, _ := a.And(b)
	cut, _ := a.AndNot(b)

	if or.Count() != 3 {
		t.Errorf("Or count: got %d, want 3", or.Count())
	}
	if and.Count() != 1 {
		t.Errorf("And count: got %d, want 1", and.Count())
	}
	if cut.Count() != 1 || !cut.At(0, 0) {
		t.Errorf("AndNot: got %v, want only pixel 0", cut.Data)
	}
	if !or.Contains(a) || a.Contains(or) {
		t.Error("Contains: union must contain its operands and not vice versa")
	}

	other := NewMask(5, 1, testTransform, "")
	if _, err := a.Or(other); err == nil {
		t.Error("expected error for misaligned masks")
	}
}

func TestStack_Reductions(t *testing.T) {
	s := &Stack{}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	vals := []float64{0.1, 0.2, 0.3, 0.2, 0.1, 0.2, 0.3, 0.2, 2.0}
	for i, v := range vals {
		g := NewGridFilled(1, 1, testTransform, "", v)
		if err := s.Add(day.AddDate(0, 0, i), g); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	nan := NewGridFilled(1, 1, testTransform, "", math.NaN())
	if err := s.Add(day.AddDate(0, 0, len(vals)), nan); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	median, _ := s.Median()
	if got := median.Data[0]; got != 0.2 {
		t.Errorf("Median: got %v, want 0.2", got)
	}
	maxGrid, _ := s.Max()
	if got := maxGrid.Data[0]; got != 2.0 {
		t.Errorf("Max: got %v, want 2.0", got)
	}

	var mean, ss float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	upper := mean + 2*math.Sqrt(ss/float64(len(vals)))
	if upper >= 2.0 {
		t.Fatalf("test series does not trigger clipping: upper %v", upper)
	}
	clipped, _ := s.ClippedMax(2)
	if got := clipped.Data[0]; math.Abs(got-upper) > 1e-9 {
		t.Errorf("ClippedMax: got %v, want %v", got, upper)
	}

	window := s.Between(day.AddDate(0, 0, 1), day.AddDate(0, 0, 3))
	if window.Len() != 2 {
		t.Errorf("Between: got %d layers, want 2", window.Len())
	}
}

func TestStack_AllNaNPixelStaysNaN(t *testing.T) {
	s := &Stack{}
	_ = s.Add(time.Now(), NewGridFilled(2, 1, testTransform, "", math.NaN()))
	m, err := s.Median()
	if err != nil {
		t.Fatalf("Median failed: %v", err)
	}
	if !math.IsNaN(m.Data[0]) {
		t.Errorf("got %v, want NaN", m.Data[0])
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		vals []float64
		want float64
	}{
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2},
		{[]float64{-14}, -14},
	}
	for _, tt := range tests {
		if got := Median(append([]float64(nil), tt.vals...)); got != tt.want {
			t.Errorf("Median(%v): got %v, want %v", tt.vals, got, tt.want)
		}
	}
}

func TestKernels(t *testing.T) {
	tests := []struct {
		name   string
		kernel []Offset
		want   int
	}{
		{"square 1.5", SquareKernel(1.5), 9},
		{"square 2.0", SquareKernel(2.0), 25},
		{"square 2.5", SquareKernel(2.5), 25},
		{"circle 1.5", CircleKernel(1.5), 9},
		{"circle 1.0", CircleKernel(1.0), 5},
		{"circle 0.5", CircleKernel(0.5), 1},
	}
	for _, tt := range tests {
		if len(tt.kernel) != tt.want {
			t.Errorf("%s: got %d offsets, want %d", tt.name, len(tt.kernel), tt.want)
		}
	}
}

func TestFocalMin_WidensLowRegion(t *testing.T) {
	g := stepGrid(10, 5, 5, -0.5, 0.5)
	out := FocalMin(g, 1.5)
	if got := out.At(5, 2); got != -0.5 {
		t.Errorf("column 5: got %v, want -0.5", got)
	}
	if got := out.At(6, 2); got != 0.5 {
		t.Errorf("column 6: got %v, want 0.5", got)
	}
	if got := g.At(5, 2); got != 0.5 {
		t.Errorf("input modified: got %v, want 0.5", got)
	}
}

func TestFocalMedian_RemovesSpeckle(t *testing.T) {
	g := NewGridFilled(5, 5, testTransform, "", -20)
	g.Set(2, 2, 5)
	out := FocalMedian(g, 15)
	if got := out.At(2, 2); got != -20 {
		t.Errorf("speckle: got %v, want -20", got)
	}
}

func TestCanny_Step(t *testing.T) {
	g := stepGrid(20, 20, 10, 0, 1)
	edges := Canny(g, 0.1, 1)

	if edges.Count() == 0 {
		t.Fatal("expected edges along the step")
	}
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if edges.At(x, y) && x != 9 && x != 10 {
				t.Errorf("unexpected edge at (%d,%d)", x, y)
			}
		}
	}
	for y := 2; y < 18; y++ {
		if !edges.At(9, y) && !edges.At(10, y) {
			t.Errorf("row %d: no edge on the step", y)
		}
	}
}

func TestCanny_FlatAndFaint(t *testing.T) {
	tests := []struct {
		name string
		grid *Grid
	}{
		{"constant", NewGridFilled(20, 20, testTransform, "", 0.5)},
		{"faint step", stepGrid(20, 20, 10, 0, 0.1)},
	}
	for _, tt := range tests {
		if n := Canny(tt.grid, 0.1, 1).Count(); n != 0 {
			t.Errorf("%s: got %d edge pixels, want 0", tt.name, n)
		}
	}
}

func TestCanny_NaNNeverEdge(t *testing.T) {
	g := stepGrid(20, 20, 10, 0, 1)
	for y := 0; y < 20; y++ {
		g.Set(9, y, math.NaN())
		g.Set(10, y, math.NaN())
	}
	edges := Canny(g, 0.1, 1)
	for y := 0; y < 20; y++ {
		if edges.At(9, y) || edges.At(10, y) {
			t.Errorf("row %d: edge on NaN pixel", y)
		}
	}
}

func TestLabel(t *testing.T) {
	m := maskFromRows(
		"#..#",
		".#.#",
		"...#",
	)
	tests := []struct {
		conn  Connectivity
		count int
	}{
		{FourConnected, 3},
		{EightConnected, 2},
	}
	for _, tt := range tests {
		l := Label(m, tt.conn)
		if l.Count != tt.count {
			t.Errorf("connectivity %d: got %d components, want %d", tt.conn, l.Count, tt.count)
		}
	}

	l := Label(m, FourConnected)
	if l.IDs[0] != 1 || l.IDs[3] != 2 {
		t.Errorf("labels not in raster order: %v", l.IDs)
	}
	if l.Sizes[2] != 3 {
		t.Errorf("size of component 2: got %d, want 3", l.Sizes[2])
	}
}

func TestLabel_UShapeMerges(t *testing.T) {
	// the two arms get different provisional labels that meet on the last row
	m := maskFromRows(
		"#...#",
		"#...#",
		"#####",
	)
	if l := Label(m, FourConnected); l.Count != 1 {
		t.Errorf("got %d components, want 1", l.Count)
	}
}

func TestRemoveSmallComponents(t *testing.T) {
	m := maskFromRows(
		"##....",
		"##...#",
		"......",
		"###...",
	)
	out := RemoveSmallComponents(m, 4, EightConnected)
	if out.Count() != 4 {
		t.Errorf("got %d pixels, want 4", out.Count())
	}
	if !out.At(0, 0) || out.At(5, 1) || out.At(0, 3) {
		t.Error("wrong components kept")
	}
	if m.Count() != 8 {
		t.Error("input modified")
	}
}

func polygonArea(p orb.Polygon) float64 {
	return math.Abs(planar.Area(p))
}

func TestVectorize_AreaMatchesPixelCount(t *testing.T) {
	tests := []struct {
		name    string
		rows    []string
		conn    Connectivity
		regions int
		holes   int
	}{
		{"square", []string{"....", ".##.", ".##.", "...."}, FourConnected, 1, 0},
		{"ring with hole", []string{"#####", "#...#", "#.#.#", "#...#", "#####"}, FourConnected, 2, 1},
		{"diagonal 4", []string{"#..", ".#.", "..#"}, FourConnected, 3, 0},
		{"diagonal 8", []string{"#..", ".#.", "..#"}, EightConnected, 1, 0},
		{"pinched 4", []string{"####", "#..#", "#.#.", "###."}, FourConnected, 1, 0},
		{"pinched 8", []string{"####", "#..#", "#.#.", "###."}, EightConnected, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := maskFromRows(tt.rows...)
			regions := Vectorize(m, tt.conn)
			if len(regions) != tt.regions {
				t.Fatalf("regions: got %d, want %d", len(regions), tt.regions)
			}
			holes := 0
			for _, r := range regions {
				want := float64(r.Pixels) * testTransform.PixelArea()
				if got := polygonArea(r.Polygon); math.Abs(got-want) > 1e-6 {
					t.Errorf("region %d area: got %v, want %v", r.ID, got, want)
				}
				if r.Polygon[0].Orientation() != orb.CCW {
					t.Errorf("region %d shell not counter-clockwise", r.ID)
				}
				holes += len(r.Polygon) - 1
			}
			if holes != tt.holes {
				t.Errorf("holes: got %d, want %d", holes, tt.holes)
			}
		})
	}
}

func TestVectorize_DropsCollinearVertices(t *testing.T) {
	m := maskFromRows(
		"####",
		"####",
	)
	regions := Vectorize(m, FourConnected)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	// four corners plus the closing point
	if n := len(regions[0].Polygon[0]); n != 5 {
		t.Errorf("shell vertices: got %d, want 5", n)
	}
	b := regions[0].Polygon.Bound()
	if b.Min[0] != 500000 || b.Max[0] != 500040 || b.Max[1] != 9100000 || b.Min[1] != 9099980 {
		t.Errorf("bound: got %v", b)
	}
}

func TestCoverRoundTrip(t *testing.T) {
	m := maskFromRows(
		"......",
		".###..",
		".#.#..",
		".####.",
		"......",
	)
	regions := Vectorize(m, FourConnected)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	back := Rasterize(regions[0].Polygon, m.Width, m.Height, m.Transform, m.CRS)
	for i := range m.Data {
		if back.Data[i] != m.Data[i] {
			t.Errorf("pixel %d: got %v, want %v", i, back.Data[i], m.Data[i])
		}
	}
}

func TestCoverCountsHalfCoveredPixels(t *testing.T) {
	tr := NorthUp(0, 30, 10)
	tests := []struct {
		name string
		poly orb.Polygon
		want []int
	}{
		// 70% of the centre pixel, missing the quadrant with its centre
		{"l-shape", orb.Polygon{{{10, 10}, {20, 10}, {20, 14.5}, {14.5, 14.5}, {14.5, 20}, {10, 20}, {10, 10}}}, []int{4}},
		// 20% of the centre pixel, through its centre
		{"strip", orb.Polygon{{{14, 10}, {16, 10}, {16, 20}, {14, 20}, {14, 10}}}, nil},
		{"whole", orb.Polygon{{{10, 10}, {20, 10}, {20, 20}, {10, 20}, {10, 10}}}, []int{4}},
	}
	for _, tt := range tests {
		got := Cover(tt.poly, 3, 3, tr)
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
			}
		}
	}
}
