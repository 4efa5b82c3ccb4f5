package transform

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type FileKind string

const (
	KindPDF    FileKind = "pdf"
	KindImage  FileKind = "image"
	KindOffice FileKind = "office"
	KindOther  FileKind = "other"
)

var officeExtensions = map[string]bool{
	".doc": true, ".docx": true, ".odt": true, ".rtf": true,
	".xls": true, ".xlsx": true, ".ods": true,
	".ppt": true, ".pptx": true, ".odp": true,
}

var officeMimes = map[string]bool{
	"application/msword":                                                        true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.ms-excel":                                                  true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.oasis.opendocument.spreadsheet":                            true,
	"application/vnd.oasis.opendocument.presentation":                           true,
	"application/rtf":                                                           true,
}

// ClassifyDeclared decides the file kind from the MIME type and filename the
// sender supplied, without looking at content.
func ClassifyDeclared(mime, filename string) FileKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case mime == "application/pdf" || ext == ".pdf":
		return KindPDF
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case officeMimes[mime] || officeExtensions[ext]:
		return KindOffice
	case ext == ".jpg" || ext == ".jpeg" || ext == ".png" || ext == ".webp":
		return KindImage
	}
	return KindOther
}

// Classify prefers the declared type and falls back to content sniffing when
// the declaration is missing or generic.
func Classify(data []byte, mime, filename string) (FileKind, string) {
	if kind := ClassifyDeclared(mime, filename); kind != KindOther {
		return kind, mime
	}
	if len(data) == 0 {
		return KindOther, mime
	}
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if kind := ClassifyDeclared(m.String(), "x"+m.Extension()); kind != KindOther {
			return kind, detected.String()
		}
	}
	return KindOther, detected.String()
}

// OutputExtension picks the extension for a result of the given MIME type.
func OutputExtension(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}
