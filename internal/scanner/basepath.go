package scanner

import (
	"os"
	"path/filepath"
	"strings"
)

// BasePath is the common ancestor of the parent directories of every file added so far.
// It only ever narrows. When files live on different volumes the common prefix
// collapses to "" and stays there.
type BasePath struct {
	path string
	set  bool
}

// Add narrows the base path so that it is an ancestor of file's parent directory.
func (b *BasePath) Add(file string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	parent := filepath.Dir(abs)

	if !b.set {
		b.path = parent
		b.set = true
		return nil
	}
	b.path = CommonBase(b.path, parent)
	return nil
}

// Path returns the current base path, "" when unset or degenerate.
func (b BasePath) Path() string {
	return b.path
}

// IsSet reports whether at least one file has been added.
func (b BasePath) IsSet() bool {
	return b.set
}

// CommonBase returns the component-wise longest common prefix of two cleaned
// directory paths. Paths on different volumes, or mixing absolute and relative
// forms, have no common prefix and yield "".
func CommonBase(a, b string) string {
	volA, absA, partsA := splitPath(a)
	volB, absB, partsB := splitPath(b)
	if !sameVolume(volA, volB) || absA != absB {
		return ""
	}

	n := 0
	for n < len(partsA) && n < len(partsB) && partsA[n] == partsB[n] {
		n++
	}

	prefix := volA
	if absA {
		prefix += string(os.PathSeparator)
	}
	common := prefix + strings.Join(partsA[:n], string(os.PathSeparator))
	if common == "" {
		return ""
	}
	return filepath.Clean(common)
}

func splitPath(p string) (vol string, abs bool, parts []string) {
	if p == "" {
		return "", false, nil
	}
	vol = filepath.VolumeName(p)
	rest := p[len(vol):]
	abs = len(rest) > 0 && os.IsPathSeparator(rest[0])
	parts = strings.FieldsFunc(rest, func(r rune) bool {
		return r < 0x80 && os.IsPathSeparator(uint8(r))
	})
	return vol, abs, parts
}

func sameVolume(a, b string) bool {
	if os.PathSeparator == '\\' {
		return strings.EqualFold(a, b)
	}
	return a == b
}
