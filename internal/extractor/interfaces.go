package extractor

// Orientation is the EXIF orientation tag value (1..8).
type Orientation int

const (
	OrientationNormal       Orientation = 1
	OrientationMirror       Orientation = 2
	OrientationRotate180    Orientation = 3
	OrientationFlipVertical Orientation = 4
	OrientationTranspose    Orientation = 5
	OrientationRotate90CW   Orientation = 6
	OrientationTransverse   Orientation = 7
	OrientationRotate90CCW  Orientation = 8
)

// SwapsAxes reports whether displaying the image exchanges its width and height.
func (o Orientation) SwapsAxes() bool {
	return o >= OrientationTranspose && o <= OrientationRotate90CCW
}

// Valid reports whether o is a defined EXIF orientation.
func (o Orientation) Valid() bool {
	return o >= OrientationNormal && o <= OrientationRotate90CCW
}

// OrientationExtractor reads the EXIF orientation of an image.
type OrientationExtractor interface {
	// ExtractOrientation never fails: missing or unreadable EXIF yields OrientationNormal.
	ExtractOrientation(filePath string) Orientation
}

// CachedOrientationExtractor extends OrientationExtractor with caching capabilities.
type CachedOrientationExtractor interface {
	OrientationExtractor
	ClearCache()
	GetCacheStats() CacheStats
}

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64
	Misses       int64
	HitRate      float64
	TotalQueries int64
}
