package probe

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/sillage/internal/analysis"
)

// JPEG qualities for each capture mode.
const (
	lowJPEGQuality  = 30
	highJPEGQuality = 50
)

// DirCamera treats the newest image file in a directory as the live view.
// Frames are re-encoded as JPEG at the quality matching the request.
type DirCamera struct {
	Dir string
}

// Capture implements Camera.
func (c DirCamera) Capture(ctx context.Context, q Quality) (analysis.Frame, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Frame{}, err
	}

	path, modTime, err := c.newest()
	if err != nil {
		return analysis.Frame{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return analysis.Frame{}, fmt.Errorf("opening frame: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return analysis.Frame{}, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}

	quality := lowJPEGQuality
	if q == QualityHigh {
		quality = highJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return analysis.Frame{}, fmt.Errorf("encoding frame: %w", err)
	}

	return analysis.Frame{Image: buf.Bytes(), MIMEType: "image/jpeg", CapturedAt: modTime}, nil
}

func (c DirCamera) newest() (string, time.Time, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reading frame directory: %w", err)
	}

	var (
		best     string
		bestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = filepath.Join(c.Dir, e.Name())
			bestTime = info.ModTime()
		}
	}
	if best == "" {
		return "", time.Time{}, fmt.Errorf("no image frames in %s", c.Dir)
	}
	return best, bestTime, nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
