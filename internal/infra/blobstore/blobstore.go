// Package blobstore persists evidence bytes addressed by their SHA-256.
// Objects live at <category>/<hash[0:2]>/<hash>; the logical name stays on
// the evidence record, so identical bytes share one object per category.
package blobstore

import (
	"errors"
	"path"
	"strings"
)

const defaultCategory = "misc"

var ErrInvalidPath = errors.New("invalid blob path")

// ObjectPath returns the storage path for content with the given hash.
func ObjectPath(category, hash string) string {
	return path.Join(cleanCategory(category), hash[:2], hash)
}

func cleanCategory(category string) string {
	category = strings.TrimSpace(strings.ToLower(category))
	category = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(category)
	if category == "" || category == "." {
		return defaultCategory
	}
	return category
}

// checkPath rejects absolute paths and traversal out of the store root.
func checkPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return clean, nil
}
