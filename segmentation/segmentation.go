package segmentation

import (
	"image"

	"leafscan/config"

	"gocv.io/x/gocv"
)

// Segment isolates plant tissue from the background. The input must be a
// BGR image at the canonical resolution; the returned 8-bit mask marks leaf
// pixels with 255. An image without green tissue yields an all-zero mask,
// which downstream stages treat as a valid degenerate case, not an error.
func Segment(img gocv.Mat, cfg config.SegmentationConfig) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	lower := gocv.NewScalar(cfg.HueMin, cfg.SatMin, cfg.ValMin, 0)
	upper := gocv.NewScalar(cfg.HueMax, 255, 255, 0)
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)

	// Close fills small gaps inside the leaf, the following open clears
	// background speckle.
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse,
		image.Pt(cfg.KernelSize, cfg.KernelSize))
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)

	return mask
}

// LeafArea counts the leaf pixels in a mask.
func LeafArea(mask gocv.Mat) int {
	if mask.Empty() {
		return 0
	}
	return gocv.CountNonZero(mask)
}
