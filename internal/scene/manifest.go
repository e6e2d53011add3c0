package scene

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/tiff"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

// ManifestName is the file name looked up when a directory is loaded.
const ManifestName = "scene.json"

// Manifest describes a directory of single-band TIFF files.
type Manifest struct {
	Name      string                  `json:"name"`
	CRS       string                  `json:"crs"`
	Transform raster.GeoTransform     `json:"transform"`
	Bands     map[string]BandEncoding `json:"bands"`
	Scenes    []ManifestScene         `json:"scenes"`
	Static    map[string]string       `json:"static"`
}

// ManifestScene lists the band files of one acquisition. Paths are relative
// to the manifest directory.
type ManifestScene struct {
	Date  string            `json:"date"`
	Files map[string]string `json:"files"`
}

// BandEncoding maps stored integer samples to physical values.
type BandEncoding struct {
	Scale  *float64 `json:"scale,omitempty"`
	Offset float64  `json:"offset,omitempty"`
	NoData *float64 `json:"nodata,omitempty"`
}

// GetScale returns the scale, defaulting to 1.
func (e BandEncoding) GetScale() float64 {
	if e.Scale == nil {
		return 1
	}
	return *e.Scale
}

// Decode converts a stored sample. The nodata sample decodes to NaN.
func (e BandEncoding) Decode(dn float64) float64 {
	if e.NoData != nil && dn == *e.NoData {
		return math.NaN()
	}
	return dn*e.GetScale() + e.Offset
}

// LoadManifest reads a scene from a manifest file, or from the scene.json
// inside a directory.
func LoadManifest(path string) (*Scene, error) {
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		path = filepath.Join(path, ManifestName)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.Transform.PixelWidth == 0 || m.Transform.PixelHeight == 0 {
		return nil, fmt.Errorf("manifest %s: transform pixel size must be non-zero", path)
	}
	if len(m.Scenes) == 0 && len(m.Static) == 0 {
		return nil, fmt.Errorf("manifest %s lists no bands", path)
	}

	dir := filepath.Dir(path)
	name := m.Name
	if name == "" {
		name = filepath.Base(dir)
	}
	sc := newScene(name, path)
	sc.CRS = m.CRS

	for _, entry := range m.Scenes {
		t, err := time.Parse(time.DateOnly, entry.Date)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: invalid date %q: %w", path, entry.Date, err)
		}
		for band, file := range entry.Files {
			g, err := readTIFFBand(filepath.Join(dir, file), m.Bands[band], m.Transform, m.CRS)
			if err != nil {
				return nil, fmt.Errorf("band %s on %s: %w", band, entry.Date, err)
			}
			if err := sc.addLayer(band, t, g); err != nil {
				return nil, err
			}
		}
	}
	for band, file := range m.Static {
		g, err := readTIFFBand(filepath.Join(dir, file), m.Bands[band], m.Transform, m.CRS)
		if err != nil {
			return nil, fmt.Errorf("static band %s: %w", band, err)
		}
		if err := sc.addStatic(band, g); err != nil {
			return nil, err
		}
	}
	sc.sortSeries()
	return sc, nil
}

// readTIFFBand decodes the first channel of a grayscale TIFF into a grid.
func readTIFFBand(path string, enc BandEncoding, t raster.GeoTransform, crs string) (*raster.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open band file: %w", err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TIFF %s: %w", path, err)
	}
	return imageGrid(img, enc, t, crs), nil
}

func imageGrid(img image.Image, enc BandEncoding, t raster.GeoTransform, crs string) *raster.Grid {
	b := img.Bounds()
	g := raster.NewGrid(b.Dx(), b.Dy(), t, crs)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			var dn float64
			switch im := img.(type) {
			case *image.Gray16:
				dn = float64(im.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			case *image.Gray:
				dn = float64(im.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			default:
				dn = float64(color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y)
			}
			g.Data[y*g.Width+x] = enc.Decode(dn)
		}
	}
	return g
}

// WriteTIFFBand encodes g as a 16-bit grayscale TIFF using enc in reverse.
// Values that do not fit are clamped; NaN is written as the nodata sample.
func WriteTIFFBand(path string, g *raster.Grid, enc BandEncoding) error {
	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for i, v := range g.Data {
		var dn float64
		if math.IsNaN(v) {
			if enc.NoData != nil {
				dn = *enc.NoData
			}
		} else {
			dn = math.Round((v - enc.Offset) / enc.GetScale())
		}
		dn = math.Max(0, math.Min(65535, dn))
		img.SetGray16(i%g.Width, i/g.Width, color.Gray16{Y: uint16(dn)})
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create band file: %w", err)
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode TIFF %s: %w", path, err)
	}
	return f.Close()
}
