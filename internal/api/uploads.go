package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
)

// uploadsWebPath maps a storage-relative path onto the public /uploads URL.
func uploadsWebPath(rel string) string {
	if rel == "" {
		return ""
	}
	return "/uploads/" + rel
}

// sniffMIME detects the content type from the first bytes of the file and
// rewinds it for the subsequent copy.
func sniffMIME(f io.ReadSeeker) (string, error) {
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("sniff upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	return parseMediaType(http.DetectContentType(buf[:n])), nil
}

// parseMediaType strips any parameters from a Content-Type value.
func parseMediaType(ct string) string {
	for i := 0; i < len(ct); i++ {
		if ct[i] == ';' {
			return ct[:i]
		}
	}
	return ct
}

// extOf returns the extension of a client-supplied filename.
func extOf(name string) string {
	return filepath.Ext(filepath.Base(name))
}
