// Package features builds the 128-value numeric signature of a leaf
// image. The vector layout is a fixed contract every consumer relies on
// positionally:
//
//	[0,96)    three 32-bin color histograms (H, S, V) over leaf pixels
//	[96,108)  twelve HSV statistics (mean, std, Q25, Q75 per channel)
//	[108,116) eight gray-level co-occurrence texture statistics
//	[116,120) four local-pattern histogram statistics
//	[120,128) eight shape/lesion statistics
//
// Degenerate inputs (empty leaf mask, empty disease mask) yield zero
// values for the affected blocks, never NaN.
package features

import (
	"fmt"
	"sort"

	"leafscan/config"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// VectorSize is the signature length.
const VectorSize = 128

// Block boundaries within the signature.
const (
	HistStart    = 0
	HistEnd      = 96
	StatsStart   = 96
	StatsEnd     = 108
	TextureStart = 108
	TextureEnd   = 116
	PatternStart = 116
	PatternEnd   = 120
	ShapeStart   = 120
	ShapeEnd     = 128
)

// histogramBins is fixed by the layout contract: 3 channels x 32 bins
// fill [0,96).
const histogramBins = (HistEnd - HistStart) / 3

// Extract computes the signature of one image. The image must be BGR at
// the canonical resolution; both masks are 8-bit with 255 marking member
// pixels. Extract never fails: degenerate masks produce zero blocks.
func Extract(img gocv.Mat, leafMask gocv.Mat, diseaseMask gocv.Mat, cfg config.FeaturesConfig) []float64 {
	vec := make([]float64, VectorSize)

	leaf := leafMask.ToBytes()
	disease := diseaseMask.ToBytes()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)
	hsvBytes := hsv.ToBytes()
	channels := hsv.Channels()

	colorHistograms(vec[HistStart:HistEnd], hsvBytes, channels, leaf)
	colorStatistics(vec[StatsStart:StatsEnd], hsvBytes, channels, leaf)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	grayBytes := gray.ToBytes()
	cols := gray.Cols()

	cooccurrenceStats(vec[TextureStart:TextureEnd], grayBytes, cols, disease, cfg.GLCMLevels)
	localPatternStats(vec[PatternStart:PatternEnd], grayBytes, cols, disease)
	shapeStats(vec[ShapeStart:ShapeEnd], diseaseMask, countNonZero(leaf), cfg.MinLesionArea)

	return vec
}

// Accessors for the shape statistics other packages read positionally.

// LesionCount returns the number of qualifying lesions in a signature.
func LesionCount(vec []float64) float64 { return vec[ShapeStart] }

// MeanLesionArea returns the mean lesion area in pixels.
func MeanLesionArea(vec []float64) float64 { return vec[ShapeStart+1] }

// Coverage returns the fraction of leaf area classified as diseased.
func Coverage(vec []float64) float64 { return vec[ShapeStart+3] }

// colorHistograms fills three 32-bin histograms over the leaf pixels,
// normalized by the masked pixel count. OpenCV hue spans [0,180), the
// other channels [0,256).
func colorHistograms(dst []float64, hsv []byte, channels int, leaf []byte) {
	count := 0
	for i, m := range leaf {
		if m == 0 {
			continue
		}
		count++
		off := i * channels
		dst[binIndex(int(hsv[off]), 180)]++
		dst[histogramBins+binIndex(int(hsv[off+1]), 256)]++
		dst[2*histogramBins+binIndex(int(hsv[off+2]), 256)]++
	}
	if count == 0 {
		return
	}
	for i := range dst {
		dst[i] /= float64(count)
	}
}

func binIndex(v, span int) int {
	idx := v * histogramBins / span
	if idx >= histogramBins {
		idx = histogramBins - 1
	}
	return idx
}

// colorStatistics fills mean, standard deviation and the 25th/75th
// percentiles per HSV channel over the leaf pixels.
func colorStatistics(dst []float64, hsv []byte, channels int, leaf []byte) {
	var samples [3][]float64
	for i, m := range leaf {
		if m == 0 {
			continue
		}
		off := i * channels
		for c := 0; c < 3; c++ {
			samples[c] = append(samples[c], float64(hsv[off+c]))
		}
	}

	for c := 0; c < 3; c++ {
		vals := samples[c]
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		mean, std := stat.PopMeanStdDev(vals, nil)
		dst[c*4] = mean
		dst[c*4+1] = std
		dst[c*4+2] = stat.Quantile(0.25, stat.Empirical, vals, nil)
		dst[c*4+3] = stat.Quantile(0.75, stat.Empirical, vals, nil)
	}
}

func countNonZero(mask []byte) float64 {
	n := 0
	for _, m := range mask {
		if m != 0 {
			n++
		}
	}
	return float64(n)
}

var featureNames = buildNames()

// Names returns the 128 feature names in vector order.
func Names() []string {
	out := make([]string, len(featureNames))
	copy(out, featureNames)
	return out
}

func buildNames() []string {
	names := make([]string, 0, VectorSize)
	for _, ch := range []string{"h", "s", "v"} {
		for i := 0; i < histogramBins; i++ {
			names = append(names, fmt.Sprintf("%s_hist_%02d", ch, i))
		}
	}
	for _, ch := range []string{"h", "s", "v"} {
		for _, s := range []string{"mean", "std", "q25", "q75"} {
			names = append(names, ch+"_"+s)
		}
	}
	names = append(names,
		"glcm_contrast", "glcm_correlation", "glcm_energy", "glcm_homogeneity",
		"glcm_dissimilarity", "glcm_entropy", "glcm_cluster_shade", "glcm_cluster_prominence",
		"lbp_mean", "lbp_std", "lbp_energy", "lbp_entropy",
		"num_lesions", "mean_lesion_area", "std_lesion_area", "disease_coverage",
		"lesion_density", "mean_compactness", "lesion_distance_mean", "lesion_distance_std",
	)
	return names
}
