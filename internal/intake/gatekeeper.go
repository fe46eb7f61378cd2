package intake

import (
	"mime"
	"path/filepath"
	"strings"
)

// FileHeader is what the gatekeeper knows about a file before any of its
// bytes are read. Size is -1 when the part did not declare one.
type FileHeader struct {
	Index     int
	Filename  string
	MediaType string
	Size      int64
}

// Gatekeeper validates declared media type, size and count of incoming files.
type Gatekeeper struct {
	allowed      map[string]struct{}
	maxFileBytes int64
	maxFiles     int
}

func NewGatekeeper(allowedTypes []string, maxFileBytes int64, maxFiles int) *Gatekeeper {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			allowed[t] = struct{}{}
		}
	}
	return &Gatekeeper{allowed: allowed, maxFileBytes: maxFileBytes, maxFiles: maxFiles}
}

// Accept checks one file header. Index is zero-based, so the count check
// fires on the first file past the ceiling.
func (g *Gatekeeper) Accept(h FileHeader) error {
	if h.Index >= g.maxFiles {
		return newError(KindTooManyFiles, "at most %d files are allowed per request", g.maxFiles)
	}
	if _, ok := g.allowed[h.MediaType]; !ok {
		return newError(KindUnsupportedMediaType, "file %q has unsupported type %q", h.Filename, h.MediaType)
	}
	if h.Size > g.maxFileBytes {
		return newError(KindFileTooLarge, "file %q exceeds the %d byte limit", h.Filename, g.maxFileBytes)
	}
	return nil
}

// MaxFileBytes is the per-file ceiling enforced while streaming.
func (g *Gatekeeper) MaxFileBytes() int64 {
	return g.maxFileBytes
}

// resolveMediaType normalizes a declared Content-Type and falls back to the
// file extension when the declaration is missing or generic.
func resolveMediaType(declared, filename string) string {
	mt := ""
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			mt = strings.ToLower(parsed)
		}
	}
	if mt == "" || mt == "application/octet-stream" {
		if inferred := mediaTypeFromExt(filename); inferred != "" {
			return inferred
		}
	}
	if mt == "" {
		return "application/octet-stream"
	}
	return mt
}

var extMediaTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".rtf":  "application/rtf",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".zip":  "application/zip",
	".rar":  "application/vnd.rar",
	".7z":   "application/x-7z-compressed",
}

func mediaTypeFromExt(filename string) string {
	return extMediaTypes[strings.ToLower(filepath.Ext(filename))]
}
