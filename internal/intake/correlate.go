package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/parisxmas/TenderDesk/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

// FileMetadata is the client-supplied per-file metadata. Descriptions,
// Types and Keys are aligned with upload order; Meta entries are matched by
// their "key" (a client upload id from Keys) or "name" (original filename).
type FileMetadata struct {
	Descriptions []string
	Types        []string
	Keys         []string
	Meta         []map[string]any
}

// MetadataFrom extracts file metadata from a normalized submission.
func MetadataFrom(s *models.NormalizedSubmission) FileMetadata {
	return FileMetadata{
		Descriptions: s.Strings(FieldDescriptions),
		Types:        s.Strings(FieldTypes),
		Keys:         s.Strings(FieldKeys),
		Meta:         s.Objects(FieldMeta),
	}
}

// Correlator hashes stored files and joins them with their metadata.
type Correlator struct {
	workers int
	logger  *slog.Logger
}

func NewCorrelator(workers int, logger *slog.Logger) *Correlator {
	if workers <= 0 {
		workers = DefaultHashWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{workers: workers, logger: logger}
}

// Correlate is the positional join: file i gets descriptions[i] and
// documentTypes[i], defaulting to "" and "other".
func (c *Correlator) Correlate(ctx context.Context, files []models.StoredFile, descriptions, documentTypes []string) ([]models.AttachmentRecord, []Warning) {
	return c.CorrelateWith(ctx, files, FileMetadata{Descriptions: descriptions, Types: documentTypes})
}

// CorrelateWith prefers keyed metadata and falls back to positional arrays.
// A file whose bytes cannot be read back keeps a nil hash and produces a
// HashComputationFailed warning; the other files are unaffected.
func (c *Correlator) CorrelateWith(ctx context.Context, files []models.StoredFile, meta FileMetadata) ([]models.AttachmentRecord, []Warning) {
	records := make([]models.AttachmentRecord, len(files))
	keyed := indexMeta(meta.Meta)
	for i, f := range files {
		rec := models.AttachmentRecord{File: f, DocumentType: DefaultDocumentType}
		if i < len(meta.Keys) {
			rec.Key = strings.TrimSpace(meta.Keys[i])
		}
		if i < len(meta.Descriptions) {
			rec.Description = meta.Descriptions[i]
		}
		if i < len(meta.Types) && strings.TrimSpace(meta.Types[i]) != "" {
			rec.DocumentType = meta.Types[i]
		}
		entry, ok := keyed[rec.Key]
		if !ok || rec.Key == "" {
			entry, ok = keyed[f.OriginalName]
		}
		if ok {
			if d, has := entry["description"]; has {
				rec.Description = stringify(d)
			}
			if t := firstString(entry, "type", "documentType"); t != "" {
				rec.DocumentType = t
			}
		}
		records[i] = rec
	}

	hashErrs := make([]error, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				hashErrs[i] = err
				return nil
			}
			rec := &records[i]
			sum, err := hashFile(rec.File.Path)
			if err != nil {
				hashErrs[i] = err
				return nil
			}
			rec.ContentHash = &sum
			c.inspect(rec)
			return nil
		})
	}
	_ = g.Wait()

	var warnings []Warning
	for i, err := range hashErrs {
		if err == nil {
			continue
		}
		c.logger.Warn("hash computation failed", "file", records[i].File.StoredName, "index", i, "error", err)
		warnings = append(warnings, Warning{
			Kind:    KindHashComputationFailed,
			Index:   i,
			Message: "content hash unavailable for " + records[i].File.OriginalName + ": " + err.Error(),
		})
	}
	return records, warnings
}

// inspect sniffs the stored bytes and, for PDFs, counts pages. Failures only
// leave the fields empty.
func (c *Correlator) inspect(rec *models.AttachmentRecord) {
	detected, err := mimetype.DetectFile(rec.File.Path)
	if err != nil {
		c.logger.Debug("content sniffing failed", "file", rec.File.StoredName, "error", err)
		return
	}
	rec.DetectedType = baseMediaType(detected.String())
	rec.TypeMismatch = !matchesDeclared(detected, rec.File.MimeType)

	if rec.DetectedType == "application/pdf" {
		pages, err := pageCount(rec.File.Path)
		if err != nil {
			c.logger.Debug("pdf page count failed", "file", rec.File.StoredName, "error", err)
			return
		}
		rec.PageCount = pages
	}
}

// pageCount recovers from parser panics on corrupt PDFs.
func pageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	return api.PageCountFile(path)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func matchesDeclared(detected *mimetype.MIME, declared string) bool {
	if declared == "" {
		return true
	}
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(declared) {
			return true
		}
	}
	return false
}

func baseMediaType(s string) string {
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	return s
}

func indexMeta(entries []map[string]any) map[string]map[string]any {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]map[string]any, len(entries)*2)
	for _, e := range entries {
		if k := firstString(e, "key"); k != "" {
			out[k] = e
		}
		if n := firstString(e, "name"); n != "" {
			if _, taken := out[n]; !taken {
				out[n] = e
			}
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s := strings.TrimSpace(stringify(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
