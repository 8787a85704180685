package extractor

import (
	"fmt"
	"os"
	"sync"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFExtractor reads orientation from JPEG EXIF metadata.
type EXIFExtractor struct {
	logger *logrus.Logger
	cache  *sync.Map
	stats  CacheStats
	mutex  sync.RWMutex
}

// NewEXIFExtractor returns a new EXIFExtractor.
func NewEXIFExtractor(logger *logrus.Logger) *EXIFExtractor {
	return &EXIFExtractor{
		logger: logger,
		cache:  &sync.Map{},
		stats:  CacheStats{},
	}
}

// ExtractOrientation returns the EXIF orientation of filePath, or OrientationNormal
// when the file has no readable orientation tag.
func (e *EXIFExtractor) ExtractOrientation(filePath string) Orientation {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		e.logger.Debugf("Could not stat %s for orientation: %v", filePath, err)
		return OrientationNormal
	}

	key := e.getCacheKey(filePath, fileInfo)
	if value, ok := e.cache.Load(key); ok {
		e.incrementCacheHits()
		return value.(Orientation)
	}
	e.incrementCacheMisses()

	orientation, err := e.extractWithGoExif(filePath)
	if err != nil {
		e.logger.Debugf("No orientation for %s, assuming normal: %v", filePath, err)
		orientation = OrientationNormal
	}
	e.cache.Store(key, orientation)
	return orientation
}

// ClearCache removes all entries from the internal cache and resets statistics.
func (e *EXIFExtractor) ClearCache() {
	e.cache = &sync.Map{}
	e.mutex.Lock()
	e.stats = CacheStats{}
	e.mutex.Unlock()
}

// GetCacheStats returns cache statistics for this extractor.
func (e *EXIFExtractor) GetCacheStats() CacheStats {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	stats := e.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	return stats
}

// extractWithGoExif reads the orientation tag using the rwcarlsen/goexif library.
func (e *EXIFExtractor) extractWithGoExif(filePath string) (Orientation, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return 0, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, fmt.Errorf("no orientation tag: %w", err)
	}
	value, err := tag.Int(0)
	if err != nil {
		return 0, fmt.Errorf("invalid orientation tag: %w", err)
	}

	orientation := Orientation(value)
	if !orientation.Valid() {
		return 0, fmt.Errorf("orientation out of range: %d", value)
	}
	return orientation, nil
}

// getCacheKey returns a cache key for the given file path and file info.
func (e *EXIFExtractor) getCacheKey(filePath string, fileInfo os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().UnixNano())
}

// incrementCacheHits increments the cache hit counter.
func (e *EXIFExtractor) incrementCacheHits() {
	e.mutex.Lock()
	e.stats.Hits++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}

// incrementCacheMisses increments the cache miss counter.
func (e *EXIFExtractor) incrementCacheMisses() {
	e.mutex.Lock()
	e.stats.Misses++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}
