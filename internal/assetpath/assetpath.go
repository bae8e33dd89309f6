// Package assetpath maps content identity onto relative paths under the
// storage root. Every function is pure, so a producer can compute the same
// target twice and get the same string.
package assetpath

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/datallboy/mediaq/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	ImagesDir = "images"
	HLSRoot   = "hls"

	defaultImageExt = "jpg"
)

var knownImageExts = map[string]string{
	"jpg":  "jpg",
	"jpeg": "jpg",
	"png":  "png",
	"webp": "webp",
	"gif":  "gif",
	"avif": "avif",
}

// Slugify lowercases title, strips diacritics and joins the remaining
// alphanumeric runs with single hyphens. An empty result becomes "untitled".
func Slugify(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

// ImagePath returns images/<slug>.<role>.<ext>.
func ImagePath(slug string, role domain.ImageRole, ext string) (string, error) {
	if role != domain.RoleThumb && role != domain.RoleBanner {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	slug = Slugify(slug)
	ext = normalizeExt(ext)
	return path.Join(ImagesDir, fmt.Sprintf("%s.%s.%s", slug, role, ext)), nil
}

// HLSDir returns hls/<slug>/ep-<n>.
func HLSDir(slug string, episode int) string {
	return path.Join(HLSRoot, Slugify(slug), fmt.Sprintf("ep-%d", episode))
}

// RoleFromPath reads the role back out of an image target path.
func RoleFromPath(target string) (domain.ImageRole, error) {
	base := path.Base(target)
	parts := strings.Split(base, ".")
	if len(parts) < 3 {
		return "", fmt.Errorf("%w: no role segment in %q", domain.ErrUnknownRole, target)
	}
	role, ok := domain.ParseImageRole(parts[len(parts)-2])
	if !ok {
		return "", fmt.Errorf("%w: %q in %q", domain.ErrUnknownRole, parts[len(parts)-2], target)
	}
	return role, nil
}

// ImageExt guesses an image extension from the source URL path, ignoring the
// query string. Unknown or missing extensions fall back to jpg.
func ImageExt(sourceURL string) string {
	p := sourceURL
	if u, err := url.Parse(sourceURL); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")
	return normalizeExt(ext)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if known, ok := knownImageExts[ext]; ok {
		return known
	}
	return defaultImageExt
}
