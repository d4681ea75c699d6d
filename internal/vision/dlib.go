package vision

import (
	"fmt"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facesweep/internal/types"
)

// DlibEngine runs dlib in-process through go-face.
// The models directory must contain shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and, for CNN detection,
// mmod_human_face_detector.dat.
type DlibEngine struct {
	rec *face.Recognizer
	cnn bool
}

// NewDlibEngine loads the dlib models from modelsDir.
func NewDlibEngine(modelsDir string, cnn bool) (*DlibEngine, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load models from %s: %w", modelsDir, err)
	}
	return &DlibEngine{rec: rec, cnn: cnn}, nil
}

// DlibFactory returns a Factory that gives every worker its own recognizer.
func DlibFactory(modelsDir string, cnn bool) Factory {
	return func(int) (Engine, error) {
		e, err := NewDlibEngine(modelsDir, cnn)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

func (e *DlibEngine) Recognize(img *Image) ([]types.Face, error) {
	var (
		faces []face.Face
		err   error
	)
	if e.cnn {
		faces, err = e.rec.RecognizeCNN(img.JPEG)
	} else {
		faces, err = e.rec.Recognize(img.JPEG)
	}
	if err != nil {
		return nil, err
	}

	out := make([]types.Face, len(faces))
	for i, f := range faces {
		out[i] = types.Face{Box: f.Rectangle, Vec: types.Encoding(f.Descriptor)}
	}
	return out, nil
}

func (e *DlibEngine) Close() error {
	e.rec.Close()
	return nil
}
