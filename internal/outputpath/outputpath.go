// Package outputpath derives where a compressed file is written.
package outputpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"photo-compressor-go/internal/config"
)

var (
	// ErrNoBasePath is returned when structure must be kept but the inputs share no
	// common base directory (for example files on different volumes).
	ErrNoBasePath = errors.New("no common base path to keep structure from")
	// ErrNotDescendant is returned when the input's directory is outside the base path.
	ErrNotDescendant = errors.New("input is not inside the base path")
	// ErrNoParent is returned when the input has no parent directory.
	ErrNoParent = errors.New("input has no parent directory")
)

// Request describes one file whose destination is to be resolved.
type Request struct {
	OutputRoot    string // output folder, or the input's own folder
	InputPath     string
	BasePath      string
	KeepStructure bool
	Suffix        string
	Format        config.OutputFormat
}

// Destination is a resolved output location.
type Destination struct {
	Dir  string
	Name string
}

// Path joins the destination directory and file name.
func (d Destination) Path() string {
	return filepath.Join(d.Dir, d.Name)
}

// Extension returns the output file extension (without dot) for format.
// FormatOriginal keeps the input's own extension, which may be empty.
func Extension(format config.OutputFormat, inputPath string) string {
	switch format {
	case config.FormatJPEG:
		return "jpg"
	case config.FormatPNG:
		return "png"
	case config.FormatWebP:
		return "webp"
	case config.FormatTIFF:
		return "tiff"
	case config.FormatGIF:
		return "gif"
	default:
		_, ext := splitName(filepath.Base(inputPath))
		return ext
	}
}

// FileName builds stem + suffix (+ "." + extension when there is one).
func FileName(inputPath, suffix string, format config.OutputFormat) string {
	stem, _ := splitName(filepath.Base(inputPath))
	name := stem + suffix
	if ext := Extension(format, inputPath); ext != "" {
		name += "." + ext
	}
	return name
}

// Resolve computes the output directory and file name for one input.
func Resolve(req Request) (Destination, error) {
	name := FileName(req.InputPath, req.Suffix, req.Format)
	if !req.KeepStructure {
		return Destination{Dir: req.OutputRoot, Name: name}, nil
	}

	inputDir := filepath.Dir(req.InputPath)
	if inputDir == req.InputPath {
		return Destination{}, ErrNoParent
	}
	parent, err := filepath.Abs(inputDir)
	if err != nil {
		return Destination{}, fmt.Errorf("absolute path of %s: %w", inputDir, err)
	}

	// Writing alongside the input: nothing to rebuild.
	if root, err := filepath.Abs(req.OutputRoot); err == nil && root == parent {
		return Destination{Dir: req.OutputRoot, Name: name}, nil
	}

	if req.BasePath == "" {
		return Destination{}, ErrNoBasePath
	}
	rel, err := relativeTo(req.BasePath, parent)
	if err != nil {
		return Destination{}, err
	}
	return Destination{Dir: filepath.Join(req.OutputRoot, rel), Name: name}, nil
}

// relativeTo strips base from dir component-wise.
func relativeTo(base, dir string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(base), dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDescendant, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrNotDescendant, dir, base)
	}
	if rel == "." {
		return "", nil
	}
	return rel, nil
}

// splitName splits a file name into stem and extension without the dot.
// Dotfiles such as ".hidden" have no extension.
func splitName(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// EnsureDir creates dir and any missing parents. A directory created concurrently by
// another worker is not an error.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			return nil
		}
		return err
	}
	return nil
}
