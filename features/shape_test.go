package features

import (
	"image"
	"math"
	"testing"
)

func TestShapeStats_TwoLesions(t *testing.T) {
	const size = 64
	data := make([]byte, size*size)
	fillRect(data, size, 8, 8, 12, 12)
	fillRect(data, size, 40, 40, 12, 12)
	mask := maskMat(t, size, size, data)
	defer mask.Close()

	dst := make([]float64, 8)
	shapeStats(dst, mask, size*size, 30)

	if dst[0] != 2 {
		t.Fatalf("expected 2 lesions, got %v", dst[0])
	}
	if math.Abs(dst[1]-121) > 1e-9 {
		t.Errorf("expected mean area 121, got %v", dst[1])
	}
	if dst[2] != 0 {
		t.Errorf("expected zero area std for equal lesions, got %v", dst[2])
	}
	if math.Abs(dst[3]-242.0/(size*size)) > 1e-9 {
		t.Errorf("expected coverage %v, got %v", 242.0/(size*size), dst[3])
	}
	if dst[5] < 0.7 || dst[5] > 0.9 {
		t.Errorf("expected square-like compactness near 0.785, got %v", dst[5])
	}
	if math.Abs(dst[6]-32*math.Sqrt2) > 0.01 {
		t.Errorf("expected centroid distance %v, got %v", 32*math.Sqrt2, dst[6])
	}
	if dst[7] != 0 {
		t.Errorf("expected zero distance std for a single pair, got %v", dst[7])
	}
}

func TestShapeStats_FiltersSmallLesions(t *testing.T) {
	const size = 64
	data := make([]byte, size*size)
	fillRect(data, size, 8, 8, 12, 12)
	fillRect(data, size, 50, 50, 3, 3) // area 4, below the minimum
	mask := maskMat(t, size, size, data)
	defer mask.Close()

	dst := make([]float64, 8)
	shapeStats(dst, mask, size*size, 30)

	if dst[0] != 1 {
		t.Fatalf("expected the speck to be filtered, got %v lesions", dst[0])
	}
	if dst[6] != 0 || dst[7] != 0 {
		t.Errorf("expected zero distances for a single lesion, got %v and %v", dst[6], dst[7])
	}
}

func TestShapeStats_EmptyMask(t *testing.T) {
	const size = 32
	mask := emptyMask(t, size, size)
	defer mask.Close()

	dst := make([]float64, 8)
	shapeStats(dst, mask, size*size, 30)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("expected zeros for an empty mask, got %v at index %d", v, i)
		}
	}
}

func TestShapeStats_ZeroLeafArea(t *testing.T) {
	const size = 64
	data := make([]byte, size*size)
	fillRect(data, size, 8, 8, 12, 12)
	mask := maskMat(t, size, size, data)
	defer mask.Close()

	dst := make([]float64, 8)
	shapeStats(dst, mask, 0, 30)

	if dst[0] != 1 {
		t.Fatalf("expected 1 lesion, got %v", dst[0])
	}
	if dst[3] != 0 || dst[4] != 0 {
		t.Errorf("expected zero coverage and density without leaf area, got %v and %v", dst[3], dst[4])
	}
}

func TestContourCentroid(t *testing.T) {
	square := []image.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	cx, cy := contourCentroid(square)
	if math.Abs(cx-5) > 1e-9 || math.Abs(cy-5) > 1e-9 {
		t.Errorf("expected centroid (5,5), got (%v,%v)", cx, cy)
	}

	// A degenerate polygon falls back to the vertex mean.
	line := []image.Point{{X: 0, Y: 0}, {X: 4, Y: 0}}
	cx, cy = contourCentroid(line)
	if math.Abs(cx-2) > 1e-9 || cy != 0 {
		t.Errorf("expected vertex-mean centroid (2,0), got (%v,%v)", cx, cy)
	}
}
