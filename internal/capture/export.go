package capture

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// DirExporter saves captures as PNG files in a directory.
type DirExporter struct {
	Dir string
}

// Export writes img to Dir/<id>.png, creating Dir if needed. The file is
// written under a temporary name and renamed so partial files never appear.
func (e DirExporter) Export(ctx context.Context, id string, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id == "" || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid capture id %q", id)
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}

	final := filepath.Join(e.Dir, id+".png")
	tmp, err := os.CreateTemp(e.Dir, "."+id+"-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create capture file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to encode capture: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close capture file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("failed to store capture: %w", err)
	}
	return final, nil
}
