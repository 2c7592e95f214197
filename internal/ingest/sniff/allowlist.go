package sniff

import "strings"

var extAliases = map[string]string{
	"jpeg": "jpg",
	"jpe":  "jpg",
	"tif":  "tiff",
	"heif": "heic",
}

var mimeAliases = map[string]string{
	"image/jpg":         "image/jpeg",
	"image/pjpeg":       "image/jpeg",
	"image/heif":        "image/heic",
	"application/x-pdf": "application/pdf",
	"application/rtf":   "text/rtf",
}

// AllowList is the set of types a caller accepts. Entries may be full MIME
// types ("image/png"), major-type wildcards ("image/*") or extensions ("png",
// ".png"). The zero value allows nothing.
type AllowList struct {
	mimes  map[string]struct{}
	majors map[string]struct{}
	exts   map[string]struct{}
}

// NewAllowList parses entries, ignoring blanks.
func NewAllowList(entries ...string) AllowList {
	a := AllowList{
		mimes:  make(map[string]struct{}),
		majors: make(map[string]struct{}),
		exts:   make(map[string]struct{}),
	}

	for _, raw := range entries {
		entry := strings.ToLower(strings.TrimSpace(raw))
		if entry == "" {
			continue
		}

		major, minor, isMIME := strings.Cut(entry, "/")
		switch {
		case isMIME && minor == "*":
			a.majors[major] = struct{}{}
		case isMIME:
			a.mimes[normalizeMIME(baseMIME(entry))] = struct{}{}
		default:
			a.exts[normalizeExt(entry)] = struct{}{}
		}
	}
	return a
}

// Empty reports whether the list accepts nothing.
func (a AllowList) Empty() bool {
	return len(a.mimes) == 0 && len(a.majors) == 0 && len(a.exts) == 0
}

// Allows reports whether d matches any entry. Archive and unknown families
// are never allowed, whatever the entries say.
func (a AllowList) Allows(d DetectedType) bool {
	if !d.family.Transcodable() {
		return false
	}

	mt := normalizeMIME(d.mime)
	if _, ok := a.mimes[mt]; ok {
		return true
	}
	if major, _, ok := strings.Cut(mt, "/"); ok {
		if _, ok := a.majors[major]; ok {
			return true
		}
	}
	_, ok := a.exts[normalizeExt(d.ext)]
	return ok
}

// Entries returns the parsed entries in no particular order, for logs.
func (a AllowList) Entries() []string {
	out := make([]string, 0, len(a.mimes)+len(a.majors)+len(a.exts))
	for m := range a.mimes {
		out = append(out, m)
	}
	for m := range a.majors {
		out = append(out, m+"/*")
	}
	for e := range a.exts {
		out = append(out, e)
	}
	return out
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if alias, ok := extAliases[ext]; ok {
		return alias
	}
	return ext
}

func normalizeMIME(mt string) string {
	if alias, ok := mimeAliases[mt]; ok {
		return alias
	}
	return mt
}
