package imaging

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"leafscan/logging"

	"gocv.io/x/gocv"
)

// StdImageLoader handles TIFF, BMP and WebP. gocv decodes these when the
// OpenCV build carries the codec; the pure-Go decoders cover builds that
// do not.
type StdImageLoader struct{}

func (l *StdImageLoader) CanLoad(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff", ".bmp", ".webp":
		return fileExists(path)
	}
	return false
}

func (l *StdImageLoader) Load(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if !img.Empty() {
		return img, nil
	}

	logging.Debug("gocv could not decode %s, trying pure-Go decoder", path)
	decoded, err := decodeWithStdImage(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to decode %s: %v", path, err)
	}
	return matFromImage(decoded)
}

func decodeWithStdImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return tiff.Decode(f)
	case ".bmp":
		return bmp.Decode(f)
	case ".webp":
		return webp.Decode(f)
	}
	return nil, fmt.Errorf("unsupported extension %s", filepath.Ext(path))
}

// matFromImage converts a decoded image.Image into a BGR Mat.
func matFromImage(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	rgba := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert image: %v", err)
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}
