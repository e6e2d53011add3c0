// Package quicklook renders rasters and candidate outlines as PNG images for
// debugging a detection run and for the MCP quicklook tool.
//
// # Coordinate System
//
// Images share the pixel grid of the raster they are rendered from: image
// pixel (x, y) is raster column x, row y, with (0,0) at the top-left corner.
// Polygons are drawn by mapping their world coordinates back through the
// raster's GeoTransform.
//
// # Color Representation
//
// Continuous grids are drawn through a Ramp, a list of color stops blended in
// CIE L*a*b* space so equal value steps look like equal color steps. Nodata
// pixels and unset mask pixels are fully transparent, so layers can be
// stacked with Overlay.
//
// # Output
//
// Encode returns base64 PNG data for MCP responses; Save writes a PNG file.
// Both accept a scale factor and upscale with nearest-neighbour resampling so
// individual pixels stay visible.
package quicklook
