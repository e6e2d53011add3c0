// Package raster provides the georeferenced grid types and whole-grid
// operations the detector is built on.
//
// A Grid holds one band of float64 pixel values, a Mask holds a binary
// predicate over the same pixels, and a Stack holds a time series of aligned
// grids. Every operation returns a new value; inputs are never modified, so a
// grid can be shared freely once it has been produced.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner, X (column)
// increasing rightward and Y (row) increasing downward. Pixel corners map to
// projected world coordinates through GeoTransform; the CRS string is carried
// along unchanged and never interpreted.
//
// # Nodata
//
// NaN marks pixels without a valid observation. Comparisons against NaN are
// false, so NaN pixels never enter a mask; focal filters and temporal
// reductions skip them; Canny never marks them as edges.
//
// # Operations
//
//   - Focal filters: FocalMin (square kernel), FocalMedian (circular kernel)
//   - Temporal reductions: Stack.Median, Mean, Max, StdDev, ClippedMax
//   - Edges: Canny
//   - Regions: Label, RemoveSmallComponents, Vectorize
//   - Polygon burn-in: Cover, Rasterize
package raster
