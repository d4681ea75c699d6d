// Package worker runs face recognition in a Python subprocess for setups
// where the face_recognition stack is preferred over the in-process dlib engine.
package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/andresmejia3/facesweep/internal/utils" // Using the SafeCommand wrapper
	"github.com/andresmejia3/facesweep/internal/vision"
)

const (
	statusOK    = 0
	statusError = 1

	// maxResponse guards against a corrupt length header.
	maxResponse = 64 << 20
)

type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

// NewPythonWorker starts `python3 -u script` with a side-channel pipe on FD 3.
func NewPythonWorker(id int, script string) (*PythonWorker, error) {
	py := utils.NewSafeCommand("python3", "-u", script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Factory gives every dispatcher worker its own Python process.
func Factory(script string) vision.Factory {
	return func(id int) (vision.Engine, error) {
		w, err := NewPythonWorker(id, script)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// Communicate sends one framed request and reads one framed response.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	// Read Result
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Recognize sends the JPEG bytes of img and decodes the detected faces.
func (w *PythonWorker) Recognize(img *vision.Image) ([]types.Face, error) {
	resp, err := w.Communicate(img.JPEG)
	if err != nil {
		return nil, err
	}
	return decodeFaces(resp)
}

// decodeFaces parses a response payload.
//
//	OK:    [Status:0] [NumFaces:u32] ([Box: 4 x i32 top,right,bottom,left] [Vec: 128 x f32])*
//	Error: [Status:1] [MsgLen:u32] [Msg]
func decodeFaces(resp []byte) ([]types.Face, error) {
	if len(resp) == 0 {
		return nil, errors.New("empty response from python worker")
	}
	r := bytes.NewReader(resp[1:])

	switch resp[0] {
	case statusOK:
	case statusError:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	default:
		return nil, fmt.Errorf("unknown response status %d", resp[0])
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("malformed face count: %w", err)
	}
	// each face is 16 bytes of box plus the encoding
	if int64(count)*(16+4*types.EncodingDim) > int64(r.Len()) {
		return nil, fmt.Errorf("response truncated: %d faces announced", count)
	}

	faces := make([]types.Face, 0, count)
	for i := uint32(0); i < count; i++ {
		var loc [4]int32 // top, right, bottom, left
		if err := binary.Read(r, binary.BigEndian, &loc); err != nil {
			return nil, err
		}
		var vec [types.EncodingDim]float32
		if err := binary.Read(r, binary.BigEndian, &vec); err != nil {
			return nil, err
		}
		faces = append(faces, types.Face{
			Box: image.Rect(int(loc[3]), int(loc[0]), int(loc[1]), int(loc[2])),
			Vec: types.Encoding(vec),
		})
	}
	return faces, nil
}

func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
