package constants

import "strings"

// Output spreadsheet suffixes appended to the source document's stem.
const (
	OfficialSuffix = "_official.xlsx"
	ExtraSuffix    = "_extra.xlsx"
	ReviewedSuffix = "_reviewed.json"
)

// ImageMIMETypes maps rasterized page extensions onto the MIME type sent to
// the vision model.
var ImageMIMETypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MIMEForExt returns the image MIME type for ext, defaulting to PNG which is
// what the rasterizer emits.
func MIMEForExt(ext string) string {
	if mt, ok := ImageMIMETypes[NormalizeExt(ext)]; ok {
		return mt
	}
	return "image/png"
}

// SourceExtensions lists the document types accepted for upload (lowercase,
// without '.').
var SourceExtensions = map[string]struct{}{
	"pdf":  {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"heic": {},
	"heif": {},
}

// AllowedSourceExt reports whether ext names an accepted document type.
func AllowedSourceExt(ext string) bool {
	_, ok := SourceExtensions[NormalizeExt(ext)]
	return ok
}
