package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const downscaleJPEGQuality = 90

// downscaleImage shrinks an image whose longest edge exceeds maxDim and re-encodes it as JPEG.
// It reports false and returns the input untouched when no resize is needed or
// maxDim is zero. Formats Go cannot decode are passed through unchanged.
func downscaleImage(data []byte, maxDim int) ([]byte, string, bool, error) {
	if maxDim <= 0 {
		return data, "", false, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, "", false, nil
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return data, "", false, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to decode image: %w", err)
	}

	width, height := scaledSize(cfg.Width, cfg.Height, maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	// JPEG has no alpha; flatten transparent regions onto white
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: downscaleJPEGQuality}); err != nil {
		return nil, "", false, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), mimeJPEG, true, nil
}

// scaledSize fits width x height inside maxDim, keeping the aspect ratio
func scaledSize(width, height, maxDim int) (int, int) {
	if width >= height {
		h := height * maxDim / width
		if h < 1 {
			h = 1
		}
		return maxDim, h
	}
	w := width * maxDim / height
	if w < 1 {
		w = 1
	}
	return w, maxDim
}
