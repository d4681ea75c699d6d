package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/andresmejia3/facesweep/internal/config"
	"github.com/andresmejia3/facesweep/internal/dispatch"
	"github.com/andresmejia3/facesweep/internal/planner"
	"github.com/andresmejia3/facesweep/internal/scan"
	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/andresmejia3/facesweep/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var me, other types.Encoding

func init() {
	me[0] = 1
	other[1] = 1
}

// nameEngine answers by file name: "me_*" holds the known person, "none_*"
// has no faces, everything else has a stranger.
type nameEngine struct{ closed *atomic.Int64 }

func (e nameEngine) Recognize(img *vision.Image) ([]types.Face, error) {
	name := filepath.Base(img.Path)
	switch {
	case strings.HasPrefix(name, "me_") || name == "known.png":
		return []types.Face{{Box: image.Rect(0, 0, 4, 4), Vec: me}}, nil
	case strings.HasPrefix(name, "none_"):
		return nil, nil
	default:
		return []types.Face{{Vec: other}}, nil
	}
}

func (e nameEngine) Close() error {
	e.closed.Add(1)
	return nil
}

type fixture struct {
	cfg     *config.Config
	started atomic.Int64
	closed  atomic.Int64
}

func (f *fixture) factory(int) (vision.Engine, error) {
	f.started.Add(1)
	return nameEngine{closed: &f.closed}, nil
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.White)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	images := filepath.Join(root, "imageset")
	require.NoError(t, os.Mkdir(images, 0755))
	writePNG(t, filepath.Join(root, "known.png"))
	for _, n := range names {
		writePNG(t, filepath.Join(images, n))
	}
	require.NoError(t, os.WriteFile(filepath.Join(images, "notes.txt"), []byte("skip me"), 0644))

	cfg := config.Default()
	cfg.Known = filepath.Join(root, "known.png")
	cfg.Images = images
	cfg.Cores = 4
	return &fixture{cfg: cfg}
}

func twelve() []string {
	var names []string
	for i := 1; i <= 12; i++ {
		prefix := "x_"
		if i == 3 || i == 7 {
			prefix = "me_"
		}
		names = append(names, fmt.Sprintf("%simage_%02d.png", prefix, i))
	}
	return names
}

func TestRunTwelveImages(t *testing.T) {
	f := newFixture(t, twelve()...)

	rep, err := Run(context.Background(), f.cfg, f.factory, dispatch.Options{})
	require.NoError(t, err)

	assert.Equal(t, me, rep.Known)
	require.Len(t, rep.Outcomes, 12)
	for i := 1; i < len(rep.Outcomes); i++ {
		assert.Less(t, rep.Outcomes[i-1].Ref.Name, rep.Outcomes[i].Ref.Name, "outcomes sorted by name")
	}

	var matched []string
	for _, o := range rep.Matches() {
		matched = append(matched, o.Ref.Name)
	}
	assert.Equal(t, []string{"me_image_03.png", "me_image_07.png"}, matched)

	st := rep.Stats
	assert.Equal(t, 12, st.TotalImages)
	assert.Equal(t, 2, st.Matched)
	assert.Equal(t, 10, st.NotMatched)
	assert.Equal(t, planner.New(12, 4), st.Plan)
	assert.Equal(t, 4, st.Cores)
	assert.Positive(t, st.TotalTime)
	assert.GreaterOrEqual(t, st.TotalTime, st.ProcessingTime)

	// one engine for the known face plus one per worker, all closed
	assert.EqualValues(t, 1+st.Plan.Workers, f.started.Load())
	assert.Equal(t, f.started.Load(), f.closed.Load())
}

func TestSerialBaseline(t *testing.T) {
	f := newFixture(t, twelve()...)

	saver := &countingSaver{}
	rep, err := Serial(context.Background(), f.cfg, f.factory, dispatch.Options{Saver: saver})
	require.NoError(t, err)

	assert.Equal(t, planner.Serial(), rep.Stats.Plan)
	assert.Len(t, rep.Matches(), 2)
	assert.Zero(t, saver.n.Load(), "baseline never annotates")
}

func TestRunEmptyFolder(t *testing.T) {
	f := newFixture(t)

	rep, err := Run(context.Background(), f.cfg, f.factory, dispatch.Options{})
	require.NoError(t, err)
	assert.Empty(t, rep.Outcomes)
	assert.True(t, rep.Stats.Plan.IsZero())
	assert.EqualValues(t, 1, f.started.Load(), "only the known-face engine")
}

func TestRunSetupErrors(t *testing.T) {
	f := newFixture(t, "x_a.png")
	cfg := *f.cfg
	cfg.Known = filepath.Join(t.TempDir(), "missing.png")
	_, err := Run(context.Background(), &cfg, f.factory, dispatch.Options{})
	assert.ErrorIs(t, err, vision.ErrKnownNotFound)

	cfg = *f.cfg
	cfg.Images = filepath.Join(t.TempDir(), "missing")
	_, err = Run(context.Background(), &cfg, f.factory, dispatch.Options{})
	assert.ErrorIs(t, err, scan.ErrImageDirNotFound)

	cfg = *f.cfg
	writePNG(t, filepath.Join(cfg.Images, "none_face.png"))
	cfg.Known = filepath.Join(cfg.Images, "none_face.png")
	_, err = Run(context.Background(), &cfg, f.factory, dispatch.Options{})
	assert.ErrorIs(t, err, vision.ErrNoKnownFace)
}

func TestRunEngineStartFailure(t *testing.T) {
	f := newFixture(t, "x_a.png")
	boom := errors.New("no models")
	factory := func(int) (vision.Engine, error) { return nil, boom }

	_, err := Run(context.Background(), f.cfg, factory, dispatch.Options{})
	assert.ErrorIs(t, err, boom)
}

type countingSaver struct{ n atomic.Int64 }

func (c *countingSaver) Save(image.Image, types.ImageRef, image.Rectangle) (string, error) {
	c.n.Add(1)
	return "", nil
}
