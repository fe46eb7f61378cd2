package intake

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parisxmas/TenderDesk/internal/models"
)

// Allocator writes uploads under root/category with collision-free names.
type Allocator struct {
	root     string
	category string
	now      func() time.Time
}

func NewAllocator(root, category string) *Allocator {
	return &Allocator{root: filepath.Clean(root), category: category, now: time.Now}
}

// Dir is the destination directory for this allocator's category.
func (a *Allocator) Dir() string {
	return filepath.Join(a.root, a.category)
}

// StoredName builds "{stem}-{millis}-{random}{ext}", lower-cased.
func (a *Allocator) StoredName(originalName string) string {
	base := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	ext := sanitizeExt(filepath.Ext(base))
	stem := sanitizeStem(strings.TrimSuffix(base, filepath.Ext(base)))
	u := uuid.New()
	name := fmt.Sprintf("%s-%d-%s%s", stem, a.now().UnixMilli(), hex.EncodeToString(u[:6]), ext)
	return strings.ToLower(name)
}

// Store streams r into a new file. When limit is positive and r yields more
// than limit bytes the partial file is removed and a FileTooLarge error is
// returned. Errors reading r are returned unwrapped so the caller can tell
// transport failures from storage failures.
func (a *Allocator) Store(r io.Reader, originalName, mediaType string, limit int64) (*models.StoredFile, error) {
	dir := a.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapError(KindStorageError, err, "create upload directory")
	}

	storedName := a.StoredName(originalName)
	path := filepath.Join(dir, storedName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, wrapError(KindStorageError, err, "create %s", storedName)
	}

	src := &sourceReader{r: r}
	var in io.Reader = src
	if limit > 0 {
		in = io.LimitReader(src, limit+1)
	}
	n, copyErr := io.Copy(f, in)
	if copyErr == nil {
		copyErr = f.Sync()
	}
	closeErr := f.Close()

	switch {
	case src.err != nil:
		_ = os.Remove(path)
		return nil, src.err
	case copyErr != nil:
		_ = os.Remove(path)
		return nil, wrapError(KindStorageError, copyErr, "write %s", storedName)
	case closeErr != nil:
		_ = os.Remove(path)
		return nil, wrapError(KindStorageError, closeErr, "close %s", storedName)
	case limit > 0 && n > limit:
		_ = os.Remove(path)
		return nil, newError(KindFileTooLarge, "file %q exceeds the %d byte limit", originalName, limit)
	}

	return &models.StoredFile{
		OriginalName: originalName,
		StoredName:   storedName,
		Path:         path,
		Category:     a.category,
		MimeType:     mediaType,
		Size:         n,
	}, nil
}

// sourceReader remembers the first non-EOF read error of the upstream body.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

func sanitizeStem(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= maxStoredStemLength {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

func sanitizeExt(ext string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if trimmed == "" || len(trimmed) > 10 {
		return ""
	}
	for _, r := range trimmed {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + trimmed
}
