// Package imaging validates and normalises user-supplied images before they are
// attached to a model request.
package imaging

import (
	"strings"
)

// Format is an accepted image encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWEBP Format = "webp"
)

// MIMEType returns the canonical MIME type for the format.
func (f Format) MIMEType() string {
	return "image/" + string(f)
}

var formatAliases = map[string]Format{
	"image/jpeg":  FormatJPEG,
	"image/jpg":   FormatJPEG,
	"image/pjpeg": FormatJPEG,
	"jpeg":        FormatJPEG,
	"jpg":         FormatJPEG,
	"image/png":   FormatPNG,
	"png":         FormatPNG,
	"image/webp":  FormatWEBP,
	"webp":        FormatWEBP,
}

// ParseFormat resolves a declared MIME type or short name to a Format.
func ParseFormat(declared string) (Format, bool) {
	key := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(key, ';'); i >= 0 {
		key = strings.TrimSpace(key[:i])
	}
	f, ok := formatAliases[key]
	return f, ok
}

// Asset is an image as received from the caller. MIMEType is whatever the
// caller declared; it is not trusted until validated.
type Asset struct {
	Name     string
	MIMEType string
	Data     []byte

	// Size is the declared size in bytes. The limit is checked against the
	// larger of Size and len(Data).
	Size int64
}

func (a Asset) size() int64 {
	return max(a.Size, int64(len(a.Data)))
}

// Image is a validated asset. It owns a private copy of the bytes and exposes
// them read-only by convention.
type Image struct {
	name   string
	format Format
	data   []byte
}

func newImage(name string, format Format, data []byte) Image {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Image{name: name, format: format, data: buf}
}

func (i Image) Name() string     { return i.name }
func (i Image) Format() Format   { return i.format }
func (i Image) MIMEType() string { return i.format.MIMEType() }
func (i Image) Size() int        { return len(i.data) }

// Data returns the encoded bytes. Callers must not modify the returned slice.
func (i Image) Data() []byte { return i.data }
