// Package vision is the boundary to the face detection and encoding library.
// Everything above it only sees boxes and 128-d encodings.
package vision

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facesweep/internal/types"
)

// DefaultTolerance is the largest distance at which two encodings are
// considered the same person.
const DefaultTolerance = 0.6

var (
	// ErrKnownNotFound is returned when the reference image is missing.
	ErrKnownNotFound = errors.New("known face image not found")
	// ErrNoKnownFace is returned when no face is detected in the reference image.
	ErrNoKnownFace = errors.New("no face detected in known image")
)

// Engine detects faces and extracts their encodings.
// Faces are returned in detection order. An Engine is owned by a single
// worker and need not be safe for concurrent use.
type Engine interface {
	Recognize(img *Image) ([]types.Face, error)
	Close() error
}

// Factory starts the engine for one worker.
type Factory func(workerID int) (Engine, error)

// Distance is the Euclidean distance between two encodings.
func Distance(a, b types.Encoding) float64 {
	return math.Sqrt(face.SquaredEuclideanDistance(face.Descriptor(a), face.Descriptor(b)))
}

// Matches reports whether candidate is within tolerance of known.
func Matches(known, candidate types.Encoding, tolerance float64) (bool, float64) {
	d := Distance(known, candidate)
	return d <= tolerance, d
}

// LoadKnown extracts the reference encoding from path using the first
// detected face.
func LoadKnown(e Engine, path string) (types.Encoding, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return types.Encoding{}, fmt.Errorf("%w: %s", ErrKnownNotFound, path)
		}
		return types.Encoding{}, err
	}

	img, err := LoadImage(path)
	if err != nil {
		return types.Encoding{}, err
	}
	faces, err := e.Recognize(img)
	if err != nil {
		return types.Encoding{}, fmt.Errorf("failed to encode known face: %w", err)
	}
	if len(faces) == 0 {
		return types.Encoding{}, fmt.Errorf("%w: %s", ErrNoKnownFace, path)
	}
	return faces[0].Vec, nil
}
