package assets

import (
	"path"
	"strings"
)

// DefaultContentType is used for files with an unrecognized extension.
const DefaultContentType = "application/octet-stream"

// contentTypes is the canonical extension to MIME type table for static web
// assets. Lookups are case-insensitive on the extension.
var contentTypes = map[string]string{
	".html":   "text/html",
	".htm":    "text/html",
	".css":    "text/css",
	".js":     "text/javascript",
	".mjs":    "text/javascript",
	".json":   "application/json",
	".map":    "application/json",
	".xml":    "application/xml",
	".txt":    "text/plain",
	".md":     "text/markdown",
	".svg":    "image/svg+xml",
	".png":    "image/png",
	".jpg":    "image/jpeg",
	".jpeg":   "image/jpeg",
	".gif":    "image/gif",
	".webp":   "image/webp",
	".ico":    "image/x-icon",
	".woff":   "font/woff",
	".woff2":  "font/woff2",
	".ttf":    "font/ttf",
	".otf":    "font/otf",
	".eot":    "application/vnd.ms-fontobject",
	".wasm":   "application/wasm",
	".pdf":    "application/pdf",
	".mp4":    "video/mp4",
	".webm":   "video/webm",
	".webmanifest": "application/manifest+json",
}

// ContentTypeFor infers the MIME content type of an object from its name,
// falling back to application/octet-stream when the extension is unknown.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return DefaultContentType
}
