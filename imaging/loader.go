package imaging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// Loader decodes one family of image formats into a BGR color Mat.
type Loader interface {
	CanLoad(path string) bool
	Load(path string) (gocv.Mat, error)
}

// DefaultLoader handles the formats gocv decodes directly.
type DefaultLoader struct{}

func (l *DefaultLoader) CanLoad(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return fileExists(path)
	}
	return false
}

func (l *DefaultLoader) Load(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return img, fmt.Errorf("failed to decode image: %s", path)
	}
	return img, nil
}

// LoaderRegistry tries registered loaders in order.
type LoaderRegistry struct {
	loaders []Loader
}

// NewLoaderRegistry creates a registry with the built-in loaders.
func NewLoaderRegistry() *LoaderRegistry {
	return &LoaderRegistry{
		loaders: []Loader{
			&DefaultLoader{},
			&StdImageLoader{},
			NewRawLoader(),
		},
	}
}

// RegisterLoader adds a custom loader to the registry.
func (r *LoaderRegistry) RegisterLoader(loader Loader) {
	r.loaders = append(r.loaders, loader)
}

// CanLoadFile checks whether any registered loader handles the file.
func (r *LoaderRegistry) CanLoadFile(path string) bool {
	for _, loader := range r.loaders {
		if loader.CanLoad(path) {
			return true
		}
	}
	return false
}

// Load decodes the image with the first loader that claims it.
func (r *LoaderRegistry) Load(path string) (gocv.Mat, error) {
	for _, loader := range r.loaders {
		if loader.CanLoad(path) {
			return loader.Load(path)
		}
	}
	return gocv.NewMat(), fmt.Errorf("no suitable loader for image: %s", path)
}

// Load decodes an image with the default registry.
func Load(path string) (gocv.Mat, error) {
	registry := NewLoaderRegistry()
	return registry.Load(path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
