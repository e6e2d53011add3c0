package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

var sceneProp = stringProp("Path to a scene: a scene.json manifest, a directory containing one, or a NetCDF cube")

// configProps are shared by the tools that run the detector.
func configProps() map[string]interface{} {
	return map[string]interface{}{
		"scene": sceneProp,
		"preset": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"hybrid-dryseason", "hybrid-median", "optical-highres"},
			"description": "Parameter preset. Default hybrid-dryseason",
		},
		"config": map[string]interface{}{
			"type":        "object",
			"description": "Inline configuration overrides applied on top of the preset (same keys as a config file)",
		},
		"config_path": stringProp("Path to a JSON config file; excludes preset and config"),
	}
}

// bandProps are shared by the tools that read one band composite.
func bandProps() map[string]interface{} {
	return map[string]interface{}{
		"scene": sceneProp,
		"band":  stringProp("Band name (green, red, nir, vv, landcover) or a derived index (ndwi, ndvi)"),
		"start": stringProp("Window start date YYYY-MM-DD (inclusive). Omit with end for all acquisitions"),
		"end":   stringProp("Window end date YYYY-MM-DD (exclusive)"),
		"composite": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"median", "mean", "max", "clipped-max"},
			"description": "Temporal composite. Default median",
		},
	}
}

func withProps(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Detection
		{
			Name:        "pond_detect",
			Description: "Run the full pond detection pipeline on a scene: seed mask, iterative edge segmentation, shape filter, cross-source validation, neighbourhood filter and smoothing. Returns per-stage counts, rejection reasons and the detected ponds.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(configProps(), map[string]interface{}{
					"output":     stringProp("Optional export path ending in .shp or .geojson"),
					"debug_dir":  stringProp("Optional directory for NDWI, seed and per-round edge quicklooks"),
					"report_dir": stringProp("Optional directory for the stage funnel and histogram charts"),
					"geojson": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the ponds as a GeoJSON FeatureCollection in the result",
						"default":     false,
					},
				}),
				"required": []string{"scene"},
			},
		},
		{
			Name:        "pond_edges",
			Description: "Build the seed mask and run the segmentation rounds only. Returns per-round edge and polygon counts and a PNG of the accumulated edge map of one round over the NDWI composite.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(configProps(), map[string]interface{}{
					"round": integerProp("Round to render (1-based). Default the last round"),
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor for the PNG. Default 1.0",
						"default":     1.0,
					},
				}),
				"required": []string{"scene"},
			},
		},

		// Scene inspection
		{
			Name:        "pond_scene_info",
			Description: "Describe a scene: CRS, grid size, geotransform, extent and the acquisition dates of every band.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scene": sceneProp,
				},
				"required": []string{"scene"},
			},
		},
		{
			Name:        "pond_sample",
			Description: "Reduce a band composite under a polygon to one value, the way candidate validation samples dry-season backscatter or cropland fraction.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(bandProps(), map[string]interface{}{
					"wkt": stringProp("Polygon in well-known text, in the scene CRS"),
					"aggregator": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"median", "mean"},
						"description": "Reduction over the covered pixels. Default median",
					},
					"max_pixels": integerProp("Optional pixel ceiling for the reduction"),
				}),
				"required": []string{"scene", "band", "wkt"},
			},
		},
		{
			Name:        "pond_quicklook",
			Description: "Render a band composite or index as a color-mapped PNG and return it base64-encoded. Use this to look at the water evidence around suspicious detections.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(bandProps(), map[string]interface{}{
					"ramp": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"water", "gray", "heat"},
						"description": "Color ramp. Default water",
					},
					"min":   numberProp("Value mapped to the start of the ramp. Default the 2nd percentile"),
					"max":   numberProp("Value mapped to the end of the ramp. Default the 98th percentile"),
					"scale": numberProp("Optional scale factor. Default 1.0"),
					"x1":    integerProp("Optional crop: left pixel (0-based)"),
					"y1":    integerProp("Optional crop: top pixel (0-based)"),
					"x2":    integerProp("Optional crop: right pixel (exclusive)"),
					"y2":    integerProp("Optional crop: bottom pixel (exclusive)"),
				}),
				"required": []string{"scene", "band"},
			},
		},

		// Geometry
		{
			Name:        "pond_shape_metrics",
			Description: "Compute area, perimeter, landscape shape index (LSI) and perimeter-to-hull ratio (RPOC) of a polygon and test it against the shape limits.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"wkt":      stringProp("Polygon in well-known text, in metric coordinates"),
					"max_lsi":  numberProp("LSI limit. Default 3.0"),
					"max_rpoc": numberProp("RPOC limit. Default 1.8"),
				},
				"required": []string{"wkt"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
