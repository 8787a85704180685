// Package metadata copies EXIF and related tags from a source image onto a freshly
// encoded output.
package metadata

import (
	"fmt"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// Copier carries metadata from src onto dst in place.
type Copier interface {
	Copy(src, dst string) error
}

// NopCopier discards metadata.
type NopCopier struct{}

// Copy implements Copier.
func (NopCopier) Copy(string, string) error { return nil }

// ExiftoolCopier copies tags through a single long-lived exiftool process. Calls are
// serialized since the process reads one command at a time.
type ExiftoolCopier struct {
	logger *logrus.Logger

	once    sync.Once
	mu      sync.Mutex
	et      *exiftool.Exiftool
	initErr error
}

// NewExiftoolCopier returns a copier that starts exiftool on first use.
func NewExiftoolCopier(logger *logrus.Logger) *ExiftoolCopier {
	return &ExiftoolCopier{logger: logger}
}

func (c *ExiftoolCopier) init() error {
	c.once.Do(func() {
		c.et, c.initErr = exiftool.NewExiftool()
		if c.initErr != nil {
			c.initErr = fmt.Errorf("start exiftool: %w", c.initErr)
			c.logger.WithError(c.initErr).Warn("metadata carry-over disabled")
		}
	})
	return c.initErr
}

// Copy implements Copier.
func (c *ExiftoolCopier) Copy(src, dst string) error {
	if err := c.init(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	read := c.et.ExtractMetadata(src)
	if len(read) == 0 {
		return fmt.Errorf("read metadata from %s: no result", src)
	}
	if read[0].Err != nil {
		return fmt.Errorf("read metadata from %s: %w", src, read[0].Err)
	}

	fields := WritableFields(read[0].Fields)
	if len(fields) == 0 {
		return nil
	}

	out := []exiftool.FileMetadata{{File: dst, Fields: fields}}
	c.et.WriteMetadata(out)
	if out[0].Err != nil {
		return fmt.Errorf("write metadata to %s: %w", dst, out[0].Err)
	}

	c.logger.WithFields(logrus.Fields{
		"source":      src,
		"destination": dst,
		"tags":        len(fields),
	}).Debug("metadata copied")
	return nil
}

// Close stops the exiftool process if it was started.
func (c *ExiftoolCopier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.et == nil {
		return nil
	}
	err := c.et.Close()
	c.et = nil
	return err
}

// Tags that describe the file or the encoded pixels rather than the photo. Writing
// them back would rename or move the output, or contradict the new encoding.
var skippedTags = map[string]struct{}{
	"SourceFile":          {},
	"ExifToolVersion":     {},
	"FileName":            {},
	"Directory":           {},
	"FileSize":            {},
	"FileModifyDate":      {},
	"FileAccessDate":      {},
	"FileInodeChangeDate": {},
	"FileCreateDate":      {},
	"FilePermissions":     {},
	"FileType":            {},
	"FileTypeExtension":   {},
	"MIMEType":            {},
	"ImageWidth":          {},
	"ImageHeight":         {},
	"ImageSize":           {},
	"ExifImageWidth":      {},
	"ExifImageHeight":     {},
	"Megapixels":          {},
	"EncodingProcess":     {},
	"BitsPerSample":       {},
	"ColorComponents":     {},
	"YCbCrSubSampling":    {},
	"JFIFVersion":         {},
	"ThumbnailImage":      {},
	"ThumbnailOffset":     {},
	"ThumbnailLength":     {},
	"PreviewImage":        {},
	"Error":               {},
	"Warning":             {},
}

// WritableFields drops tags that must not be copied onto a new encoding.
func WritableFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if _, skip := skippedTags[k]; skip || strings.HasPrefix(k, "File") {
			continue
		}
		if s, ok := v.(string); ok && strings.HasPrefix(s, "(Binary data") {
			continue
		}
		out[k] = v
	}
	return out
}
