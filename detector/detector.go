package detector

import (
	"image"
	"image/color"
	"math"
	"sort"

	"leafscan/config"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// Detect locates lesion regions within the leaf. Three independent
// pixel-level detectors (color deviation in HSV, luminance/chrominance
// deviation in LAB, local texture variance) each flag suspect pixels using
// statistics computed over leaf pixels only; a weighted vote fuses the
// flags, morphology connects the survivors, and a contour filter keeps
// only regions whose size, darkness or texture, and shape look like
// lesions. The returned 8-bit mask marks lesion pixels with 255 and may be
// all-zero when the leaf is clean, which is a valid result.
func Detect(img gocv.Mat, leafMask gocv.Mat, cfg config.DetectorConfig) gocv.Mat {
	rows, cols := img.Rows(), img.Cols()
	if leafMask.Empty() || gocv.CountNonZero(leafMask) == 0 {
		return zeroMask(rows, cols)
	}

	maskBytes := leafMask.ToBytes()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	variance := localVariance(gray)
	defer variance.Close()

	colorFlags := colorDeviationFlags(img, maskBytes, cfg)
	labFlags := labDeviationFlags(img, maskBytes, cfg)
	texFlags, texCut := textureFlags(variance, maskBytes, cfg)

	fused := fuseVotes(colorFlags, labFlags, texFlags, rows, cols, cfg)
	defer fused.Close()
	refineMask(fused)

	return filterRegions(gray, variance, leafMask, fused, texCut, cfg)
}

// colorDeviationFlags marks pixels whose hue drifts off the leaf's green
// (either well below the leaf mean or into the brown/yellow band) while
// both saturation and value sit clearly below their means.
func colorDeviationFlags(img gocv.Mat, maskBytes []byte, cfg config.DetectorConfig) []bool {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	hsvBytes := hsv.ToBytes()
	channels := hsv.Channels()

	n := len(maskBytes)
	hueS := make([]float64, 0, n/4)
	satS := make([]float64, 0, n/4)
	valS := make([]float64, 0, n/4)
	for i := 0; i < n; i++ {
		if maskBytes[i] == 0 {
			continue
		}
		off := i * channels
		hueS = append(hueS, float64(hsvBytes[off]))
		satS = append(satS, float64(hsvBytes[off+1]))
		valS = append(valS, float64(hsvBytes[off+2]))
	}

	hMean, hStd := meanStd(hueS)
	sMean, sStd := meanStd(satS)
	vMean, vStd := meanStd(valS)

	hueCut := hMean - cfg.HueDevFactor*hStd
	satCut := sMean - cfg.SatDevFactor*sStd
	valCut := vMean - cfg.ValDevFactor*vStd

	flags := make([]bool, n)
	for i := 0; i < n; i++ {
		if maskBytes[i] == 0 {
			continue
		}
		off := i * channels
		h := float64(hsvBytes[off])
		s := float64(hsvBytes[off+1])
		v := float64(hsvBytes[off+2])
		if (h < hueCut || h > cfg.BrownHueCutoff) && s < satCut && v < valCut {
			flags[i] = true
		}
	}
	return flags
}

// labDeviationFlags marks pixels that are darker than the leaf average
// while shifted toward red or yellow on the chrominance axes.
func labDeviationFlags(img gocv.Mat, maskBytes []byte, cfg config.DetectorConfig) []bool {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(img, &lab, gocv.ColorBGRToLab)

	labBytes := lab.ToBytes()
	channels := lab.Channels()

	n := len(maskBytes)
	lightS := make([]float64, 0, n/4)
	aS := make([]float64, 0, n/4)
	bS := make([]float64, 0, n/4)
	for i := 0; i < n; i++ {
		if maskBytes[i] == 0 {
			continue
		}
		off := i * channels
		lightS = append(lightS, float64(labBytes[off]))
		aS = append(aS, float64(labBytes[off+1]))
		bS = append(bS, float64(labBytes[off+2]))
	}

	lMean, lStd := meanStd(lightS)
	aMean, aStd := meanStd(aS)
	bMean, bStd := meanStd(bS)

	lightCut := lMean - cfg.LightnessDevFactor*lStd
	aCut := aMean + cfg.ChromaDevFactor*aStd
	bCut := bMean + cfg.ChromaDevFactor*bStd

	flags := make([]bool, n)
	for i := 0; i < n; i++ {
		if maskBytes[i] == 0 {
			continue
		}
		off := i * channels
		l := float64(labBytes[off])
		a := float64(labBytes[off+1])
		b := float64(labBytes[off+2])
		if l < lightCut && (a > aCut || b > bCut) {
			flags[i] = true
		}
	}
	return flags
}

// localVariance estimates per-pixel texture as the variance of a 3x3
// neighborhood: E[x^2] - E[x]^2 over box-blurred planes.
func localVariance(gray gocv.Mat) gocv.Mat {
	f := gocv.NewMat()
	defer f.Close()
	gray.ConvertTo(&f, gocv.MatTypeCV32F)

	mean := gocv.NewMat()
	defer mean.Close()
	gocv.Blur(f, &mean, image.Pt(3, 3))

	sq := gocv.NewMat()
	defer sq.Close()
	gocv.Multiply(f, f, &sq)

	meanSq := gocv.NewMat()
	defer meanSq.Close()
	gocv.Blur(sq, &meanSq, image.Pt(3, 3))

	sqMean := gocv.NewMat()
	defer sqMean.Close()
	gocv.Multiply(mean, mean, &sqMean)

	variance := gocv.NewMat()
	gocv.Subtract(meanSq, sqMean, &variance)
	return variance
}

// textureFlags marks leaf pixels whose local variance exceeds the
// configured percentile of leaf-region variance. Returns the cut value for
// the later contour filter.
func textureFlags(variance gocv.Mat, maskBytes []byte, cfg config.DetectorConfig) ([]bool, float64) {
	rows, cols := variance.Rows(), variance.Cols()

	samples := make([]float64, 0, len(maskBytes)/4)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if maskBytes[y*cols+x] == 0 {
				continue
			}
			samples = append(samples, float64(variance.GetFloatAt(y, x)))
		}
	}

	flags := make([]bool, rows*cols)
	if len(samples) == 0 {
		return flags, 0
	}

	sort.Float64s(samples)
	cut := stat.Quantile(cfg.TexturePercentile, stat.Empirical, samples, nil)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := y*cols + x
			if maskBytes[i] == 0 {
				continue
			}
			if float64(variance.GetFloatAt(y, x)) > cut {
				flags[i] = true
			}
		}
	}
	return flags, cut
}

// fuseVotes combines the three detectors by weighted vote. The cutoff is
// chosen so one strong detector alone cannot flag a pixel but the color
// detector plus either of the others can.
func fuseVotes(colorFlags, labFlags, texFlags []bool, rows, cols int, cfg config.DetectorConfig) gocv.Mat {
	fused := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := y*cols + x
			vote := 0.0
			if colorFlags[i] {
				vote += cfg.ColorVoteWeight
			}
			if labFlags[i] {
				vote += cfg.LabVoteWeight
			}
			if texFlags[i] {
				vote += cfg.TextureVoteWeight
			}
			if vote >= cfg.VoteCutoff {
				fused.SetUCharAt(y, x, 255)
			} else {
				fused.SetUCharAt(y, x, 0)
			}
		}
	}
	return fused
}

// refineMask connects fragmented detections and drops speckle: one
// dilation bridges close fragments, the open/close pair cleans edges.
func refineMask(mask gocv.Mat) {
	k3 := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3))
	defer k3.Close()
	k5 := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(5, 5))
	defer k5.Close()

	gocv.Dilate(mask, &mask, k3)
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, k3)
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, k5)
}

// filterRegions keeps candidate regions that are plausibly lesions: sized
// within bounds relative to the leaf, darker than the leaf or clearly
// textured, and neither sliver-thin nor near-perfect circles (specular
// highlights come out as the latter).
func filterRegions(gray, variance, leafMask, candidates gocv.Mat, texCut float64, cfg config.DetectorConfig) gocv.Mat {
	rows, cols := gray.Rows(), gray.Cols()
	result := zeroMask(rows, cols)

	leafArea := float64(gocv.CountNonZero(leafMask))
	grayMean, grayStd := maskedStats(gray, leafMask)
	darkCut := grayMean - cfg.DarknessDevFactor*grayStd
	texFloor := cfg.TextureFracOfCut * texCut

	contours := gocv.FindContours(candidates, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	minArea := math.Max(cfg.MinContourArea, cfg.MinContourAreaFrac*leafArea)
	maxArea := cfg.MaxContourAreaFrac * leafArea
	white := color.RGBA{R: 255, G: 255, B: 255}

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < minArea || area > maxArea {
			continue
		}

		perimeter := gocv.ArcLength(contour, true)
		if perimeter <= 0 {
			continue
		}
		circularity := 4 * math.Pi * area / (perimeter * perimeter)
		if circularity <= cfg.CircularityMin || circularity >= cfg.CircularityMax {
			continue
		}

		interior := zeroMask(rows, cols)
		gocv.DrawContours(&interior, contours, i, white, -1)
		interiorMean := gray.MeanWithMask(interior).Val1
		interiorTexture := variance.MeanWithMask(interior).Val1
		interior.Close()

		if interiorMean < darkCut || interiorTexture > texFloor {
			gocv.DrawContours(&result, contours, i, white, -1)
		}
	}
	return result
}

func maskedStats(m gocv.Mat, mask gocv.Mat) (float64, float64) {
	mBytes := m.ToBytes()
	maskBytes := mask.ToBytes()

	samples := make([]float64, 0, len(mBytes)/4)
	for i, v := range mBytes {
		if maskBytes[i] != 0 {
			samples = append(samples, float64(v))
		}
	}
	return meanStd(samples)
}

func meanStd(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(samples, nil)
}

func zeroMask(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
}
