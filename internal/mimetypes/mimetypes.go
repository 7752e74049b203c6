// Package mimetypes maps file extensions to Content-Type values.
package mimetypes

import "strings"

var byExtension = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".xml":  "application/xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".mp4":  "video/mp4",
	".woff": "font/woff",
	".woff2": "font/woff2",
}

const defaultType = "application/octet-stream"

// Lookup returns the Content-Type for a file path's extension, defaulting to
// application/octet-stream for unknown extensions.
func Lookup(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return defaultType
	}
	ext := strings.ToLower(path[i:])
	if ct, ok := byExtension[ext]; ok {
		return ct
	}
	return defaultType
}
