package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NetworkInfo identifies the primary network observed in a capture.
type NetworkInfo struct {
	SSID    string
	BSSID   string
	Channel int
}

// NamingOptions controls SafeFilename construction.
type NamingOptions struct {
	Template     string
	MaxNameLen   int
	AllowUnicode bool
	Whitespace   string
}

// SafeFilename renders the naming template into a filesystem-safe name.
// Path separators and control characters are always stripped; with
// AllowUnicode false the name is decomposed and reduced to ASCII.
func SafeFilename(info NetworkInfo, opts NamingOptions) string {
	template := opts.Template
	if strings.TrimSpace(template) == "" {
		template = "{ssid}-{bssid}-ch{channel}"
	}

	ssid := info.SSID
	if strings.TrimSpace(ssid) == "" {
		ssid = "hidden"
	}
	bssid := strings.ReplaceAll(info.BSSID, ":", "-")
	if bssid == "" {
		bssid = "00-00-00-00-00-00"
	}

	name := template
	name = strings.ReplaceAll(name, "{ssid}", ssid)
	name = strings.ReplaceAll(name, "{bssid}", bssid)
	name = strings.ReplaceAll(name, "{channel}", strconv.Itoa(info.Channel))

	if !opts.AllowUnicode {
		name = asciiFold(name)
	}
	name = sanitize(name, opts.Whitespace)

	limit := opts.MaxNameLen
	if limit <= 0 {
		limit = 80
	}
	if len(name) > limit {
		name = name[:limit]
	}
	name = strings.Trim(name, "-._")
	if name == "" {
		name = "capture"
	}
	return name
}

// asciiFold decomposes the string and drops combining marks and any
// remaining non-ASCII runes.
func asciiFold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sanitize(s, whitespace string) string {
	if whitespace == "" {
		whitespace = "-"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == 0:
			// path separators never survive
		case unicode.IsSpace(r):
			b.WriteString(whitespace)
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RenameWithCollisionGuard renames src to dest, appending -1, -2, ...
// before the extension until an unused name is found. Returns the final
// path.
func RenameWithCollisionGuard(src, dest string) (string, error) {
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	candidate := dest
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			break
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	if err := os.Rename(src, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}
