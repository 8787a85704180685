// Package scanner discovers image files from command line arguments and infers the
// common base directory used to preserve folder structure in the output.
package scanner

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// InputFile is an image accepted for processing.
type InputFile struct {
	Path    string // absolute
	Size    int64
	ModTime time.Time
	MIME    string
}

// Discovery is the outcome of a scan: the accepted files in walk order and the
// base path that anchors them.
type Discovery struct {
	BasePath string
	Files    []InputFile
}

// Paths returns the accepted file paths in discovery order.
func (d Discovery) Paths() []string {
	paths := make([]string, len(d.Files))
	for i, f := range d.Files {
		paths[i] = f.Path
	}
	return paths
}

// Scanner walks input arguments looking for supported images.
type Scanner struct {
	fs     afero.Fs
	logger *logrus.Logger
}

// NewScanner returns a Scanner backed by the operating system filesystem.
func NewScanner(logger *logrus.Logger) *Scanner {
	return NewScannerWithFs(afero.NewOsFs(), logger)
}

// NewScannerWithFs returns a Scanner backed by fs.
func NewScannerWithFs(fs afero.Fs, logger *logrus.Logger) *Scanner {
	return &Scanner{fs: fs, logger: logger}
}

// Scan collects eligible images from args. Directories are walked one level deep
// unless recursive is set; plain files are taken as is. Arguments that do not
// exist or are not supported images are dropped without error.
// Scan runs sequentially: the base path depends on discovery order.
func (s *Scanner) Scan(args []string, recursive bool) Discovery {
	var (
		files []InputFile
		base  BasePath
	)

	accept := func(path string, info os.FileInfo) {
		file, ok := s.eligible(path, info)
		if !ok {
			return
		}
		if err := base.Add(file.Path); err != nil {
			s.logger.Debugf("Skipping %s: %v", path, err)
			return
		}
		files = append(files, file)
	}

	for _, arg := range args {
		info, err := s.fs.Stat(arg)
		if err != nil {
			s.logger.Debugf("Ignoring input %s: %v", arg, err)
			continue
		}

		if !info.IsDir() {
			accept(arg, info)
			continue
		}

		s.walk(filepath.Clean(arg), recursive, accept)
	}

	s.logger.Debugf("Discovered %d files, base path %q", len(files), base.Path())
	return Discovery{BasePath: base.Path(), Files: files}
}

// walk feeds the entries of root to accept, descending into subdirectories when
// recursive is set. root itself may be a symlink to a directory; links met below
// it are not followed into.
func (s *Scanner) walk(root string, recursive bool, accept func(string, os.FileInfo)) {
	entries, err := afero.ReadDir(s.fs, root)
	if err != nil {
		s.logger.Warnf("Error reading directory %s: %v", root, err)
		return
	}

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		if !entry.IsDir() {
			accept(path, entry)
			continue
		}
		if !recursive {
			continue
		}
		_ = afero.Walk(s.fs, path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				s.logger.Warnf("Error accessing path %s: %v", path, err)
				return nil
			}
			if !info.IsDir() {
				accept(path, info)
			}
			return nil
		})
	}
}

// eligible reports whether path is a regular file, or a link to one, holding a
// supported image.
func (s *Scanner) eligible(path string, info os.FileInfo) (InputFile, bool) {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := s.fs.Stat(path)
		if err != nil {
			s.logger.Debugf("Ignoring dangling link %s: %v", path, err)
			return InputFile{}, false
		}
		info = target
	}
	if !info.Mode().IsRegular() {
		return InputFile{}, false
	}
	mime := Sniff(s.fs, path)
	if !IsSupportedMIME(mime) {
		return InputFile{}, false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return InputFile{}, false
	}
	return InputFile{
		Path:    abs,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		MIME:    mime,
	}, true
}
