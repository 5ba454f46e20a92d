// Package media shrinks attached photos before they are forwarded upstream.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"

	"reliefdesk/submission"
)

const jpegQuality = 85

// MaxDecodePixels bounds the declared size of an image that will be decoded.
// Larger images are forwarded untouched.
const MaxDecodePixels = 40_000_000

// Orientation reads the EXIF orientation tag, 1 when absent or unreadable.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// Upright applies an EXIF orientation so the image displays as shot.
func Upright(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// Orientations 5..8 swap the axes.
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	out := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var nx, ny int
			switch orientation {
			case 2:
				nx, ny = w-1-x, y
			case 3:
				nx, ny = w-1-x, h-1-y
			case 4:
				nx, ny = x, h-1-y
			case 5:
				nx, ny = y, x
			case 6:
				nx, ny = h-1-y, x
			case 7:
				nx, ny = h-1-y, w-1-x
			case 8:
				nx, ny = y, w-1-x
			}
			out.Set(nx, ny, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Fit returns the dimensions of w x h scaled down to fit maxDim, keeping the
// aspect ratio. The bool is false when no scaling is needed.
func Fit(w, h, maxDim int) (int, int, bool) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h, false
	}
	scale := float64(maxDim) / float64(w)
	if s := float64(maxDim) / float64(h); s < scale {
		scale = s
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	if nw > maxDim {
		nw = maxDim
	}
	if nh > maxDim {
		nh = maxDim
	}
	return nw, nh, true
}

// Prepare downsizes an image so neither side exceeds maxDim and re-encodes it
// as JPEG. Blobs that are not decodable images, and images already within
// limits with no rotation to apply, are returned unchanged. maxDim <= 0
// disables processing.
func Prepare(img submission.Image, maxDim int) (submission.Image, error) {
	if maxDim <= 0 || len(img.Data) == 0 {
		return img, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		log.WithField("filename", img.Filename).Debug("Attachment is not a decodable image, forwarding as-is")
		return img, nil
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxDecodePixels {
		log.WithFields(log.Fields{
			"filename": img.Filename,
			"width":    cfg.Width,
			"height":   cfg.Height,
		}).Warn("Attachment too large to decode, forwarding as-is")
		return img, nil
	}

	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		log.WithField("filename", img.Filename).Debug("Attachment is not a decodable image, forwarding as-is")
		return img, nil
	}

	orientation := 1
	if format == "jpeg" {
		orientation = Orientation(img.Data)
	}

	b := decoded.Bounds()
	rotated := orientation != 1
	if rotated {
		decoded = Upright(decoded, orientation)
		b = decoded.Bounds()
	}

	nw, nh, scale := Fit(b.Dx(), b.Dy(), maxDim)
	if !scale && !rotated {
		return img, nil
	}

	var out image.Image = decoded
	if scale {
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), decoded, b, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return img, fmt.Errorf("failed to encode image %q: %w", img.Filename, err)
	}

	log.WithFields(log.Fields{
		"filename":    img.Filename,
		"before":      len(img.Data),
		"after":       buf.Len(),
		"orientation": orientation,
		"size":        fmt.Sprintf("%dx%d", out.Bounds().Dx(), out.Bounds().Dy()),
	}).Info("Image prepared")

	return submission.Image{
		Filename:    jpegName(img.Filename),
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}, nil
}

// PrepareAll runs Prepare over every image, stopping at the first encode failure.
func PrepareAll(images []submission.Image, maxDim int) ([]submission.Image, error) {
	out := make([]submission.Image, 0, len(images))
	for _, img := range images {
		p, err := Prepare(img, maxDim)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func jpegName(name string) string {
	if name == "" {
		return ""
	}
	ext := filepath.Ext(name)
	if strings.EqualFold(ext, ".jpg") || strings.EqualFold(ext, ".jpeg") {
		return name
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}
