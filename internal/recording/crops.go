package recording

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register decoder
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/fingerprint"
)

const cropQuality = 90

// maxCropPixels caps the decoded image size. An upload within the body
// limit can still declare dimensions that would need gigabytes to decode.
const maxCropPixels = 50_000_000

// ErrImageTooLarge is returned by Save when the image header declares more
// pixels than the store will decode.
var ErrImageTooLarge = errors.NewStd("image dimensions exceed crop limit")

// CropStore writes per-detection crops under dir/{fingerprint}/{index}.jpg.
// A CropStore with an empty dir stores nothing.
type CropStore struct {
	dir       string
	maxPixels int
}

// NewCropStore creates a CropStore rooted at dir.
func NewCropStore(dir string) *CropStore {
	return &CropStore{dir: dir, maxPixels: maxCropPixels}
}

// Save decodes img once and writes one crop per detection. The returned
// slice is parallel to detections; an entry is nil when its box has no
// area inside the image.
func (s *CropStore) Save(fp fingerprint.Fingerprint, img []byte, detections []detection.Detection) ([]*string, error) {
	refs := make([]*string, len(detections))
	if s == nil || s.dir == "" {
		return refs, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return refs, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > s.maxPixels/cfg.Height {
		return refs, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return refs, fmt.Errorf("decode image: %w", err)
	}

	dir := filepath.Join(s.dir, string(fp))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return refs, fmt.Errorf("create crop directory: %w", err)
	}

	for i, d := range detections {
		rect := clampRect(d.BBox, src.Bounds())
		if rect.Empty() {
			continue
		}
		path := filepath.Join(dir, strconv.Itoa(i)+".jpg")
		if err := writeCrop(path, subImage(src, rect)); err != nil {
			return refs, err
		}
		refs[i] = &path
	}
	return refs, nil
}

// clampRect converts a bbox to an integer rectangle inside bounds.
func clampRect(b detection.BBox, bounds image.Rectangle) image.Rectangle {
	b = b.Normalized()
	r := image.Rect(
		int(math.Floor(b.X1)), int(math.Floor(b.Y1)),
		int(math.Ceil(b.X2)), int(math.Ceil(b.Y2)),
	)
	return r.Intersect(bounds)
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func subImage(src image.Image, r image.Rectangle) image.Image {
	if si, ok := src.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x-r.Min.X, y-r.Min.Y, src.At(x, y))
		}
	}
	return dst
}

func writeCrop(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create crop %s: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: cropQuality}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode crop %s: %w", path, err)
	}
	return f.Close()
}
