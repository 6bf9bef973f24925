package features

import (
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// shapeStats fills the eight lesion-geometry statistics: lesion count,
// mean and std of lesion areas, disease coverage, lesion density per
// 1000 leaf pixels, mean compactness, and the mean and std of pairwise
// centroid distances. Lesions below the minimum area are noise and do
// not count. No qualifying lesion leaves the block zero.
func shapeStats(dst []float64, diseaseMask gocv.Mat, leafArea float64, minArea float64) {
	if diseaseMask.Empty() || gocv.CountNonZero(diseaseMask) == 0 {
		return
	}

	contours := gocv.FindContours(diseaseMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var areas, compactness []float64
	var centroids [][2]float64
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < minArea {
			continue
		}
		areas = append(areas, area)

		perimeter := gocv.ArcLength(contour, true)
		if perimeter > 0 {
			compactness = append(compactness, 4*math.Pi*area/(perimeter*perimeter))
		}

		cx, cy := contourCentroid(contour.ToPoints())
		centroids = append(centroids, [2]float64{cx, cy})
	}
	if len(areas) == 0 {
		return
	}

	meanArea, stdArea := stat.PopMeanStdDev(areas, nil)

	dst[0] = float64(len(areas))
	dst[1] = meanArea
	dst[2] = stdArea
	if leafArea > 0 {
		dst[3] = floats.Sum(areas) / leafArea
		dst[4] = float64(len(areas)) / leafArea * 1000
	}
	if len(compactness) > 0 {
		dst[5] = stat.Mean(compactness, nil)
	}

	if len(centroids) >= 2 {
		var dists []float64
		for i := 0; i < len(centroids); i++ {
			for j := i + 1; j < len(centroids); j++ {
				dx := centroids[i][0] - centroids[j][0]
				dy := centroids[i][1] - centroids[j][1]
				dists = append(dists, math.Hypot(dx, dy))
			}
		}
		dst[6], dst[7] = stat.PopMeanStdDev(dists, nil)
	}
}

// contourCentroid returns the centroid of the polygon a contour
// describes, with a vertex-mean fallback for degenerate polygons.
func contourCentroid(pts []image.Point) (float64, float64) {
	if len(pts) == 0 {
		return 0, 0
	}

	var area, cx, cy float64
	n := len(pts)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := float64(pts[i].X)*float64(pts[j].Y) - float64(pts[j].X)*float64(pts[i].Y)
		area += cross
		cx += (float64(pts[i].X) + float64(pts[j].X)) * cross
		cy += (float64(pts[i].Y) + float64(pts[j].Y)) * cross
	}
	if math.Abs(area) < 1e-9 {
		var sx, sy float64
		for _, p := range pts {
			sx += float64(p.X)
			sy += float64(p.Y)
		}
		return sx / float64(n), sy / float64(n)
	}
	area /= 2
	return cx / (6 * area), cy / (6 * area)
}
