// Package scene loads multi-temporal band data from disk and serves it to the
// detector through the source.BandSource and source.Reducer contracts.
//
// # Formats
//
// Two on-disk layouts are supported:
//
//   - Manifest directory: a scene.json file listing, per acquisition date,
//     one single-band TIFF per band, plus time-invariant bands such as a
//     land-cover map. TIFF samples are integers; the manifest gives each
//     band a scale, offset and nodata value so that
//     value = DN*scale + offset.
//   - NetCDF cube: one variable per band shaped [time][y][x], a time
//     variable in days since 1970-01-01, and x/y vectors of pixel-centre
//     coordinates. Two-dimensional [y][x] variables are time-invariant bands.
//     CF scale_factor, add_offset and _FillValue attributes are honoured.
//
// Every band of a scene shares one pixel grid. The CRS is recorded as a label
// and is never reprojected.
//
// # Example Usage
//
//	cache := scene.NewCache()
//	sc, err := cache.Load("/data/demak-2021/scene.json")
//	if err != nil {
//	    return err
//	}
//	tr, _ := source.ParseRange("2021-01-01", "2022-01-01")
//	ndwi, err := sc.BandGrid(ctx, "green", tr, orb.Bound{}, source.CompositeMedian)
//
// # Thread Safety
//
// A loaded Scene is read-only and safe for concurrent use. Cache is safe for
// concurrent use.
package scene
