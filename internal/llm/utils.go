package llm

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// DetectMIME returns the declared MIME type or sniffs one from the bytes.
func DetectMIME(declared string, data []byte) string {
	if mt := strings.TrimSpace(declared); mt != "" {
		return mt
	}
	mt := http.DetectContentType(data)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	if !strings.HasPrefix(mt, "image/") {
		return "image/png"
	}
	return mt
}

// DataURL encodes an image as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + DetectMIME(mimeType, data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
