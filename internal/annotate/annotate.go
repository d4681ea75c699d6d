// Package annotate draws the matched face onto a copy of the image and
// writes it to the output folder.
package annotate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/andresmejia3/facesweep/internal/utils"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// Label is written above the matched box.
	Label = "MATCH"

	boxThickness = 3
	labelPadding = 5
	jpegQuality  = 92
)

var (
	boxColor   = color.RGBA{G: 255, A: 255}
	labelColor = color.RGBA{A: 255}
)

// Saver writes annotated matches into Dir.
// It is safe for concurrent use; every saved file gets a distinct sequence
// number and a content hash so concurrent writers never share a name.
type Saver struct {
	Dir string
	seq atomic.Uint64
}

// NewSaver returns a Saver for dir. The directory is created on first Save.
func NewSaver(dir string) *Saver {
	return &Saver{Dir: dir}
}

// Save draws box onto a copy of img and writes it as JPEG. Only the given box
// is drawn, other faces in the image are left untouched.
func (s *Saver) Save(img image.Image, ref types.ImageRef, box image.Rectangle) (string, error) {
	if s == nil || s.Dir == "" {
		return "", errors.New("no output directory configured")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}

	canvas := Draw(img, box)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("failed to encode annotated %s: %w", ref.Name, err)
	}

	name := s.fileName(ref, buf.Bytes())
	path := filepath.Join(s.Dir, name)
	if err := writeNew(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Saver) fileName(ref types.ImageRef, data []byte) string {
	base := strings.TrimSuffix(ref.Name, filepath.Ext(ref.Name))
	n := s.seq.Add(1)
	return fmt.Sprintf("detected_%s_%04d_%s.jpg", base, n, utils.ContentHash(data)[:8])
}

// writeNew refuses to replace an existing file.
func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Draw returns an RGBA copy of img with a box and label around box.
func Draw(img image.Image, box image.Rectangle) *image.RGBA {
	b := img.Bounds()
	canvas := image.NewRGBA(b)
	draw.Draw(canvas, b, img, b.Min, draw.Src)

	box = box.Intersect(b)
	if box.Empty() {
		return canvas
	}

	strokeRect(canvas, box, boxThickness, boxColor)

	face := basicfont.Face7x13
	textW := font.MeasureString(face, Label).Ceil()
	textH := face.Metrics().Height.Ceil()

	// label bar sits on top of the box and is clipped at the image edge
	bar := image.Rect(box.Min.X, box.Min.Y-textH-2*labelPadding, box.Min.X+textW+2*labelPadding, box.Min.Y).Intersect(b)
	draw.Draw(canvas, bar, image.NewUniform(boxColor), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(bar.Min.X+labelPadding, bar.Max.Y-labelPadding),
	}
	d.DrawString(Label)
	return canvas
}

func strokeRect(dst *image.RGBA, r image.Rectangle, w int, c color.Color) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w), // top
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), // left
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}
