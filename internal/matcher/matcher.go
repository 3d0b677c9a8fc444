// Package matcher pairs a sidecar record with the image it describes.
package matcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/sidestamp/internal/apperr"
	"github.com/starford/sidestamp/internal/discovery"
)

// Extensions are appended to a sidecar's base name, in priority order. The
// empty extension comes first so IMG_0001.jpg.json pairs with IMG_0001.jpg
// before any synthesized name is tried.
var Extensions = []string{"", ".jpg", ".jpeg", ".png", ".gif", ".webp"}

// BaseName returns the sidecar file name without its sidecar extension.
func BaseName(sidecarPath string) string {
	return strings.TrimSuffix(filepath.Base(sidecarPath), discovery.SidecarExt)
}

// Candidates lists the image paths probed for sidecarPath, in order.
func Candidates(sidecarPath string) []string {
	dir := filepath.Dir(sidecarPath)
	base := BaseName(sidecarPath)
	out := make([]string, 0, len(Extensions))
	for _, ext := range Extensions {
		out = append(out, filepath.Join(dir, base+ext))
	}
	return out
}

// Match returns the first candidate that exists as a regular file.
func Match(sidecarPath string) (string, error) {
	for _, p := range Candidates(sidecarPath) {
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("matcher: %s: %w", filepath.Base(sidecarPath), apperr.ErrNoMatch)
}
