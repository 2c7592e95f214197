package sniff

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
)

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

type tableEntry struct {
	mime   string
	ext    string
	family types.Family
}

// knownTypes maps a detected MIME type to what the pipeline accepts. Anything
// absent is unknown, and unknown is rejected.
var knownTypes = map[string]tableEntry{
	"image/png":              {"image/png", "png", types.FamilyRasterImage},
	"image/vnd.mozilla.apng": {"image/png", "png", types.FamilyRasterImage},
	"image/jpeg":             {"image/jpeg", "jpg", types.FamilyRasterImage},
	"image/webp":             {"image/webp", "webp", types.FamilyRasterImage},
	"image/heic":             {"image/heic", "heic", types.FamilyRasterImage},
	"image/heif":             {"image/heif", "heif", types.FamilyRasterImage},
	"image/tiff":             {"image/tiff", "tiff", types.FamilyRasterImage},

	"image/gif": {"image/gif", "gif", types.FamilyAnimatedImage},

	"application/pdf": {"application/pdf", "pdf", types.FamilyPDFDocument},

	mimeDOCX: {mimeDOCX, "docx", types.FamilyOOXMLPackage},
	mimeXLSX: {mimeXLSX, "xlsx", types.FamilyOOXMLPackage},
	mimePPTX: {mimePPTX, "pptx", types.FamilyOOXMLPackage},

	"application/msword":       {"application/msword", "doc", types.FamilyLegacyOffice},
	"application/vnd.ms-excel": {"application/vnd.ms-excel", "xls", types.FamilyLegacyOffice},
	"text/rtf":                 {"text/rtf", "rtf", types.FamilyLegacyOffice},

	"text/plain": {"text/plain", "txt", types.FamilyPlainText},
	"text/csv":   {"text/csv", "csv", types.FamilyPlainText},
}

var archiveTypes = map[string]struct{}{
	"application/zip":              {},
	"application/x-rar-compressed": {},
	"application/x-7z-compressed":  {},
	"application/x-tar":            {},
	"application/gzip":             {},
	"application/x-bzip2":          {},
	"application/x-xz":             {},
	"application/zstd":             {},
	"application/lzip":             {},
}

// classify turns a mimetype match into a DetectedType. Zip-derived formats
// that are not OOXML (jar, apk, epub, OpenDocument) count as archives.
func classify(m *mimetype.MIME) DetectedType {
	base := baseMIME(m.String())

	if e, ok := knownTypes[base]; ok {
		return DetectedType{mime: e.mime, ext: e.ext, family: e.family}
	}

	ext := strings.TrimPrefix(m.Extension(), ".")
	if _, ok := archiveTypes[base]; ok {
		return DetectedType{mime: base, ext: ext, family: types.FamilyArchive}
	}
	for p := m.Parent(); p != nil; p = p.Parent() {
		if p.Is("application/zip") {
			return DetectedType{mime: base, ext: ext, family: types.FamilyArchive}
		}
	}

	return DetectedType{mime: base, ext: ext, family: types.FamilyUnknown}
}

func baseMIME(s string) string {
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// Lookup returns the accepted type registered for mimeType, if any.
func Lookup(mimeType string) (DetectedType, bool) {
	e, ok := knownTypes[baseMIME(mimeType)]
	if !ok {
		return DetectedType{}, false
	}
	return DetectedType{mime: e.mime, ext: e.ext, family: e.family}, true
}
