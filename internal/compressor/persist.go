package compressor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/outputpath"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/timestamps"
)

type persisted struct {
	size           int64
	warning        string
	lostToExisting bool
	existingSize   int64
}

// stagingPath returns a hidden, unique sibling of the destination. Staging in the
// same directory keeps the final rename on one filesystem.
func stagingPath(dest outputpath.Destination) string {
	return filepath.Join(dest.Dir, "."+dest.Name+"."+uuid.NewString()+".tmp")
}

// persist stages data next to the destination and renames it into place once the
// overwrite policy allows it. The staged file is removed on every other outcome and
// an existing destination is never touched unless the rename happens.
func (c *DefaultCompressor) persist(f scanner.InputFile, dest outputpath.Destination, data []byte, cfg *config.Config, keepMetadata bool) (persisted, error) {
	var p persisted
	tmp := stagingPath(dest)
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		_ = os.Remove(tmp)
		return p, fmt.Errorf("write staged output: %w", err)
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmp)
		}
	}()

	if keepMetadata {
		if err := c.metadata.Copy(f.Path, tmp); err != nil {
			p.warning = fmt.Sprintf("warning: metadata not copied: %v", err)
		}
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return p, fmt.Errorf("stat staged output: %w", err)
	}
	p.size = info.Size()

	outPath := dest.Path()
	if cfg.Overwrite == config.OverwriteBigger {
		if existing, err := os.Stat(outPath); err == nil && existing.Size() <= p.size {
			p.lostToExisting = true
			p.existingSize = existing.Size()
			return p, nil
		}
	}

	if err := os.Rename(tmp, outPath); err != nil {
		return p, fmt.Errorf("move output into place: %w", err)
	}
	renamed = true

	if cfg.KeepDates {
		if err := timestamps.Copy(f.Path, outPath); err != nil {
			return p, fmt.Errorf("preserve timestamps: %w", err)
		}
	}
	return p, nil
}
