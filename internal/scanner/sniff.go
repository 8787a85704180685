package scanner

import (
	"io"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"
)

// Supported MIME types, classified from the file's leading bytes.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
	MIMEGIF  = "image/gif"
)

// sniffLen is enough for every magic number we accept (WEBP needs 12).
const sniffLen = 16

var supportedMIME = map[string]bool{
	MIMEJPEG: true,
	MIMEPNG:  true,
	MIMEWebP: true,
	MIMEGIF:  true,
}

// IsSupportedMIME reports whether mime is one of the image types the scanner accepts.
func IsSupportedMIME(mime string) bool {
	return supportedMIME[mime]
}

// Sniff returns the MIME type of the file at path based on its content,
// or "" if it cannot be read or classified.
func Sniff(fs afero.Fs, path string) string {
	f, err := fs.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return ""
	}

	kind, err := filetype.Match(buf[:n])
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}
