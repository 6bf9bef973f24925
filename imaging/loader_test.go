package imaging

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestRegistry_CanLoadFile(t *testing.T) {
	dir := t.TempDir()
	jpg := writeFile(t, dir, "leaf.jpg", []byte("x"))
	tif := writeFile(t, dir, "leaf.tif", []byte("x"))
	raw := writeFile(t, dir, "leaf.CR2", []byte("x"))
	txt := writeFile(t, dir, "notes.txt", []byte("x"))

	registry := NewLoaderRegistry()
	if !registry.CanLoadFile(jpg) {
		t.Error("expected .jpg to be accepted")
	}
	if !registry.CanLoadFile(tif) {
		t.Error("expected .tif to be accepted")
	}
	if !registry.CanLoadFile(raw) {
		t.Error("expected .CR2 to be accepted")
	}
	if registry.CanLoadFile(txt) {
		t.Error("expected .txt to be rejected")
	}
	if registry.CanLoadFile(filepath.Join(dir, "missing.jpg")) {
		t.Error("expected a missing file to be rejected")
	}
}

func TestRegistry_LoadUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("x"))

	_, err := NewLoaderRegistry().Load(path)
	if err == nil {
		t.Fatal("expected an error for an unsupported file")
	}
}

func TestDefaultLoader_RejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.jpg", []byte("not an image"))

	loader := &DefaultLoader{}
	img, err := loader.Load(path)
	defer img.Close()
	if err == nil {
		t.Fatal("expected a decode error for garbage bytes")
	}
}

func TestRegisterLoader(t *testing.T) {
	registry := NewLoaderRegistry()
	before := len(registry.loaders)
	registry.RegisterLoader(&DefaultLoader{})
	if len(registry.loaders) != before+1 {
		t.Errorf("expected %d loaders after registration, got %d", before+1, len(registry.loaders))
	}
}

func TestMatFromImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})

	m, err := matFromImage(src)
	if err != nil {
		t.Fatalf("failed to convert image: %v", err)
	}
	defer m.Close()

	if m.Rows() != 2 || m.Cols() != 3 {
		t.Fatalf("expected a 2x3 mat, got %dx%d", m.Rows(), m.Cols())
	}
	if m.Channels() != 3 {
		t.Fatalf("expected 3 channels, got %d", m.Channels())
	}

	// The red pixel must land in BGR order.
	pixels := m.ToBytes()
	if pixels[0] != 0 || pixels[1] != 0 || pixels[2] != 255 {
		t.Errorf("expected BGR (0,0,255) for red, got (%d,%d,%d)", pixels[0], pixels[1], pixels[2])
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leaf.jpg", []byte("x"))

	if !fileExists(path) {
		t.Error("expected an existing file to be found")
	}
	if fileExists(filepath.Join(dir, "missing.jpg")) {
		t.Error("expected a missing file to be reported absent")
	}
	if fileExists(dir) {
		t.Error("expected a directory to be rejected")
	}
}
