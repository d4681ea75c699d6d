package types

import (
	"image"
	"path/filepath"
	"time"
)

// EncodingDim is the length of a dlib face descriptor.
const EncodingDim = 128

// Encoding is a face embedding produced by the vision engine.
type Encoding [EncodingDim]float32

// ImageRef identifies one candidate image on disk.
type ImageRef struct {
	Dir  string
	Name string
}

// Path returns the full path of the image.
func (r ImageRef) Path() string {
	return filepath.Join(r.Dir, r.Name)
}

// Face is a single detection: its box in image coordinates and its encoding.
type Face struct {
	Box image.Rectangle
	Vec Encoding
}

// Status is the result kind of a single image task.
type Status int

const (
	NotMatched Status = iota
	Matched
	Failed
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case NotMatched:
		return "not_matched"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of String. Unknown names parse as Failed.
func ParseStatus(s string) Status {
	switch s {
	case "matched":
		return Matched
	case "not_matched":
		return NotMatched
	default:
		return Failed
	}
}

// Outcome is what a worker reports for one image.
// Reason is set only when Status is Failed. SaveErr records a failure to
// persist the annotated copy and never changes a Matched status.
type Outcome struct {
	Ref      ImageRef
	Status   Status
	Reason   error
	Faces    int
	Box      image.Rectangle
	Distance float64
	Output   string
	SaveErr  error
	Elapsed  time.Duration
	WorkerID int
}
