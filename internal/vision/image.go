package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// jpegQuality is used when a non-JPEG input has to be re-encoded for an engine.
const jpegQuality = 95

// Image is a decoded candidate plus a JPEG rendition of it.
// Engines that take encoded bytes (dlib, the Python worker) read JPEG;
// the annotator draws on Pixels.
type Image struct {
	Path   string
	Format string
	Pixels image.Image
	JPEG   []byte
}

// LoadImage reads and decodes path. Any format registered above is accepted.
func LoadImage(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeImage(path, raw)
}

// DecodeImage decodes raw bytes already read from path.
func DecodeImage(path string, raw []byte) (*Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty image file %s", path)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("image %s has no pixels", path)
	}

	out := &Image{Path: path, Format: format, Pixels: img}
	if format == "jpeg" {
		out.JPEG = raw
		return out, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to re-encode %s as jpeg: %w", path, err)
	}
	out.JPEG = buf.Bytes()
	return out, nil
}
