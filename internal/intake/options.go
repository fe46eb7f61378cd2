package intake

import "strings"

const (
	DefaultMaxFileBytes  int64 = 500 << 20
	DefaultMaxFiles            = 50
	DefaultMaxFieldBytes int64 = 10 << 20
	DefaultCategory            = "tender-documents"
	DefaultCurrency            = "ETB"
	DefaultDocumentType        = "other"
	DefaultHashWorkers         = 4
	FileFieldName              = "documents"
	maxStoredStemLength        = 50
)

// DefaultAllowedTypes is the built-in media type allow-list: documents,
// spreadsheets, presentations, images and archives.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.oasis.opendocument.text",
	"application/vnd.oasis.opendocument.spreadsheet",
	"application/vnd.oasis.opendocument.presentation",
	"application/rtf",
	"text/rtf",
	"text/csv",
	"text/plain",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"image/tiff",
	"application/zip",
	"application/x-zip-compressed",
	"application/vnd.rar",
	"application/x-rar-compressed",
	"application/x-7z-compressed",
}

// Options configures a Pipeline. Zero values are replaced by defaults.
type Options struct {
	UploadRoot      string
	Category        string
	MaxFileBytes    int64
	MaxFiles        int
	MaxFieldBytes   int64
	MaxRequestBytes int64
	AllowedTypes    []string
	DefaultCurrency string
	StrictCoercion  bool
	HashWorkers     int
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.UploadRoot) == "" {
		o.UploadRoot = "uploads"
	}
	if strings.TrimSpace(o.Category) == "" {
		o.Category = DefaultCategory
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = DefaultMaxFileBytes
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = DefaultMaxFiles
	}
	if o.MaxFieldBytes <= 0 {
		o.MaxFieldBytes = DefaultMaxFieldBytes
	}
	if o.MaxRequestBytes <= 0 {
		o.MaxRequestBytes = int64(o.MaxFiles)*o.MaxFileBytes + o.MaxFieldBytes
	}
	if len(o.AllowedTypes) == 0 {
		o.AllowedTypes = DefaultAllowedTypes
	}
	if strings.TrimSpace(o.DefaultCurrency) == "" {
		o.DefaultCurrency = DefaultCurrency
	}
	if o.HashWorkers <= 0 {
		o.HashWorkers = DefaultHashWorkers
	}
	return o
}
