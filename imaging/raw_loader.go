package imaging

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"

	"leafscan/logging"

	"gocv.io/x/gocv"
)

var rawExtensions = []string{".dng", ".nef", ".cr2", ".cr3", ".arw", ".raf", ".nrw", ".srf"}

// RawLoader handles camera RAW formats by extracting the embedded preview
// JPEG with exiftool and decoding that. Field photos straight off a camera
// card never need developing for leaf analysis, the preview is enough.
type RawLoader struct {
	TempDir string
}

// NewRawLoader creates a RAW loader using the system temp directory.
func NewRawLoader() *RawLoader {
	return &RawLoader{TempDir: os.TempDir()}
}

func (l *RawLoader) CanLoad(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, raw := range rawExtensions {
		if ext == raw {
			return fileExists(path)
		}
	}
	return false
}

func (l *RawLoader) Load(path string) (gocv.Mat, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to initialize exiftool: %v", err)
	}
	defer et.Close()

	fileInfos := et.ExtractMetadata(path)
	if len(fileInfos) == 0 {
		return gocv.NewMat(), fmt.Errorf("no metadata extracted from %s", path)
	}
	if fileInfos[0].Err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to read metadata for %s: %v", path, fileInfos[0].Err)
	}

	// Preview tags in order of typical size. The first one that yields a
	// decodable JPEG wins.
	previewTags := []string{
		"JpgFromRaw",
		"PreviewImage",
		"LargePreviewImage",
		"OtherImage",
		"ThumbnailImage",
	}

	for _, tag := range previewTags {
		tempFile := filepath.Join(l.TempDir,
			fmt.Sprintf("raw_preview_%d_%s.jpg", time.Now().UnixNano(), tag))

		if err := extractPreview(path, tempFile, tag); err != nil {
			continue
		}

		img := gocv.IMRead(tempFile, gocv.IMReadColor)
		os.Remove(tempFile)

		if !img.Empty() {
			logging.Debug("extracted %s preview from %s", tag, path)
			return img, nil
		}
	}

	return gocv.NewMat(), fmt.Errorf("failed to extract a preview from RAW file %s", path)
}

// extractPreview pulls one binary preview tag out of a RAW file. go-exiftool
// does not expose binary extraction, so this shells out like the metadata
// helper the library wraps.
func extractPreview(path, outputPath, tag string) error {
	cmd := exec.Command("exiftool", "-b", "-"+tag, path)
	output, err := cmd.Output()
	if err != nil {
		return err
	}
	if len(output) == 0 {
		return fmt.Errorf("no %s data in %s", tag, path)
	}
	return os.WriteFile(outputPath, output, 0644)
}
