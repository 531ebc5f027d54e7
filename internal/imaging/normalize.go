package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 2048
	DefaultJPEGQuality  = 90
)

// Normalizer bounds image dimensions before upload. Images within bounds are
// returned untouched; larger ones are scaled down, flattened onto white and
// re-encoded as JPEG.
type Normalizer struct {
	MaxDimension int
	Quality      int
}

// NewNormalizer returns a Normalizer. A non-positive maxDimension disables resizing.
func NewNormalizer(maxDimension int) *Normalizer {
	return &Normalizer{MaxDimension: maxDimension, Quality: DefaultJPEGQuality}
}

// NormalizeAll normalises every image, reporting the index of the first failure.
func (n *Normalizer) NormalizeAll(images []Image) ([]Image, error) {
	out := make([]Image, len(images))
	for i, img := range images {
		norm, err := n.Normalize(img)
		if err != nil {
			if e, ok := storyerr.As(err); ok {
				e.Index = i
			}
			return nil, err
		}
		out[i] = norm
	}
	return out, nil
}

// Normalize returns img, or a downscaled JPEG copy when its longest side
// exceeds MaxDimension.
func (n *Normalizer) Normalize(img Image) (Image, error) {
	if n == nil || n.MaxDimension <= 0 {
		return img, nil
	}

	cfg, err := decodeConfig(img)
	if err != nil {
		return Image{}, storyerr.Validation(ConstraintDecode, -1,
			fmt.Sprintf("cannot read %s image: %v", img.format, err))
	}
	if cfg.Width <= n.MaxDimension && cfg.Height <= n.MaxDimension {
		return img, nil
	}

	src, err := decode(img)
	if err != nil {
		return Image{}, storyerr.Validation(ConstraintDecode, -1,
			fmt.Sprintf("cannot decode %s image: %v", img.format, err))
	}

	bounds := src.Bounds()
	newWidth, newHeight := fitWithin(bounds.Dx(), bounds.Dy(), n.MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	quality := n.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return Image{}, fmt.Errorf("failed to encode resized image: %w", err)
	}

	log.Debug().
		Str("name", img.name).
		Int("orig_width", bounds.Dx()).
		Int("orig_height", bounds.Dy()).
		Int("new_width", newWidth).
		Int("new_height", newHeight).
		Int("output_size", buf.Len()).
		Msg("Image downscaled")

	return Image{name: img.name, format: FormatJPEG, data: buf.Bytes()}, nil
}

func decodeConfig(img Image) (image.Config, error) {
	r := bytes.NewReader(img.data)
	switch img.format {
	case FormatJPEG:
		return jpeg.DecodeConfig(r)
	case FormatPNG:
		return png.DecodeConfig(r)
	case FormatWEBP:
		return webp.DecodeConfig(r)
	default:
		return image.Config{}, fmt.Errorf("unsupported format: %s", img.format)
	}
}

func decode(img Image) (image.Image, error) {
	r := bytes.NewReader(img.data)
	switch img.format {
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatPNG:
		return png.Decode(r)
	case FormatWEBP:
		return webp.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", img.format)
	}
}

// fitWithin scales width and height so the longest side equals limit,
// preserving aspect ratio.
func fitWithin(width, height, limit int) (int, int) {
	if width >= height {
		h := height * limit / width
		if h < 1 {
			h = 1
		}
		return limit, h
	}
	w := width * limit / height
	if w < 1 {
		w = 1
	}
	return w, limit
}
