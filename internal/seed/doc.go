// Package seed builds the binary candidate-water mask that the segmenter cuts
// into ponds.
//
// The hybrid mask is the union of an optical test (NDWI at or above a
// threshold, on an outlier-cleaned annual composite) and a radar test
// (smoothed VV backscatter below a threshold), with speckle removed by a
// minimum connected-pixel count. The optical variant replaces the radar test
// with vegetation and brightness exclusions plus a morphological opening and
// closing.
package seed
