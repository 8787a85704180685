// Package timestamps reads and restores file times.
package timestamps

import (
	"fmt"
	"os"
	"time"

	"github.com/djherbis/times"
)

// Timestamps are the times preserved from a source file. Created is nil when the
// platform or filesystem does not record a birth time.
type Timestamps struct {
	Modified time.Time
	Accessed time.Time
	Created  *time.Time
}

// Read returns the times of path.
func Read(path string) (Timestamps, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return Timestamps{}, fmt.Errorf("read timestamps: %w", err)
	}
	out := Timestamps{
		Modified: ts.ModTime(),
		Accessed: ts.AccessTime(),
	}
	if ts.HasBirthTime() {
		born := ts.BirthTime()
		out.Created = &born
	}
	return out, nil
}

// CreationTimeSupported reports whether Apply can set birth times on this platform.
func CreationTimeSupported() bool {
	return creationTimeSupported
}

// Apply sets the times of path. The creation time is applied only where supported.
func Apply(path string, ts Timestamps) error {
	if err := os.Chtimes(path, ts.Accessed, ts.Modified); err != nil {
		return fmt.Errorf("set timestamps: %w", err)
	}
	if ts.Created != nil && creationTimeSupported {
		if err := setCreationTime(path, *ts.Created); err != nil {
			return fmt.Errorf("set creation time: %w", err)
		}
	}
	return nil
}

// Copy applies the times of src to dst.
func Copy(src, dst string) error {
	ts, err := Read(src)
	if err != nil {
		return err
	}
	return Apply(dst, ts)
}
