package imaging

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Prepare resizes a decoded image to the canonical square resolution every
// downstream stage assumes. The caller owns the returned Mat.
func Prepare(img gocv.Mat, size int) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), fmt.Errorf("cannot prepare an empty image")
	}

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationArea)
	return resized, nil
}
