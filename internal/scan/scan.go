package scan

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/andresmejia3/facesweep/internal/types"
)

// ErrImageDirNotFound is returned when the candidate folder does not exist.
var ErrImageDirNotFound = errors.New("image folder not found")

// DefaultExtensions are the image types picked up when no list is configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif"}

// ScanImages lists the candidate images directly inside dir.
// Subdirectories and files whose extension is not in exts are skipped.
// The result is sorted by name so repeated runs see the same order.
func ScanImages(dir string, exts []string) ([]types.ImageRef, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrImageDirNotFound, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[normalizeExt(e)] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	refs := make([]types.ImageRef, 0, len(entries))
	for _, e := range entries {
		// symlinks to regular files count as images
		if e.IsDir() {
			continue
		}
		if !e.Type().IsRegular() {
			fi, err := os.Stat(types.ImageRef{Dir: dir, Name: e.Name()}.Path())
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
		}
		if !allowed[extOf(e.Name())] {
			continue
		}
		refs = append(refs, types.ImageRef{Dir: dir, Name: e.Name()})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func extOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}

func normalizeExt(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}
