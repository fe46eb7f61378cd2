package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/parisxmas/TenderDesk/internal/db"
	"github.com/parisxmas/TenderDesk/internal/intake"
	"github.com/parisxmas/TenderDesk/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	svc      *TenderService
	gdb      *gorm.DB
	storeDir string
}

func newFixture(t *testing.T, opts intake.Options) *fixture {
	t.Helper()
	root := t.TempDir()
	opts.UploadRoot = root
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "svc.db"), nil)
	require.NoError(t, err)
	repo, err := repository.NewTenderRepo(gdb, 0)
	require.NoError(t, err)
	return &fixture{
		svc:      NewTenderService(intake.New(opts, nil, nil), repo, nil),
		gdb:      gdb,
		storeDir: filepath.Join(root, intake.DefaultCategory),
	}
}

func (f *fixture) files(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.storeDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func tenderRequest(t *testing.T, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, body := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="documents"; filename="`+name+`"`)
		h.Set("Content-Type", "application/pdf")
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, _ = pw.Write([]byte(body))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenders", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestSubmitPersistsTender(t *testing.T) {
	f := newFixture(t, intake.Options{})
	ctx := context.Background()

	req := tenderRequest(t, map[string]string{
		"title":              "Road Works Tender",
		"referenceNumber":    "RW-2026-01",
		"submissionDeadline": "2026-12-01",
		"budget":             `{"min":"10000","max":"20000"}`,
		"fileDescriptions":   `["Scope of work"]`,
		"fileTypes":          `["specification"]`,
	}, map[string]string{"scope.pdf": "%PDF-1.4 scope"})

	sub, err := f.svc.Submit(ctx, req, "user-7")
	require.NoError(t, err)
	assert.Empty(t, sub.Duplicates)
	require.Len(t, sub.Tender.Documents, 1)

	got, err := f.svc.Get(ctx, sub.Tender.ID)
	require.NoError(t, err)
	assert.Equal(t, "Road Works Tender", got.Title)
	assert.Equal(t, "RW-2026-01", got.Reference)
	assert.Equal(t, "user-7", got.SubmittedBy)
	require.NotNil(t, got.Deadline)
	assert.Equal(t, 2026, got.Deadline.Year())
	assert.Contains(t, got.Data, `"currency":"ETB"`)

	doc := got.Documents[0]
	assert.Equal(t, "Scope of work", doc.Description)
	assert.Equal(t, "specification", doc.DocumentType)
	require.NotNil(t, doc.ContentHash)

	meta, file, err := f.svc.OpenDocument(ctx, got.ID, doc.ID)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 scope", string(data))
	assert.Equal(t, "scope.pdf", meta.OriginalName)
}

func TestSubmitReportsDuplicates(t *testing.T) {
	f := newFixture(t, intake.Options{})
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, tenderRequest(t, map[string]string{"title": "First"}, map[string]string{"a.pdf": "same bytes"}), "u")
	require.NoError(t, err)

	second, err := f.svc.Submit(ctx, tenderRequest(t, map[string]string{"title": "Second"}, map[string]string{"b.pdf": "same bytes"}), "u")
	require.NoError(t, err)
	require.Len(t, second.Duplicates, 1)
	assert.Equal(t, first.Tender.ID, second.Duplicates[0].TenderID)

	byHash, err := f.svc.FindByHash(ctx, *second.Attachments[0].ContentHash)
	require.NoError(t, err)
	assert.Len(t, byHash, 2)
}

func TestSubmitFailedIntakeRemovesOrphans(t *testing.T) {
	f := newFixture(t, intake.Options{MaxFiles: 1})

	req := tenderRequest(t, nil, map[string]string{"a.pdf": "one", "b.pdf": "two"})
	_, err := f.svc.Submit(context.Background(), req, "u")
	assert.Equal(t, intake.KindTooManyFiles, intake.KindOf(err))
	assert.Equal(t, 0, f.files(t))
}

func TestSubmitPersistFailureRemovesFiles(t *testing.T) {
	f := newFixture(t, intake.Options{})
	sqlDB, err := f.gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	req := tenderRequest(t, map[string]string{"title": "x"}, map[string]string{"a.pdf": "bytes"})
	_, err = f.svc.Submit(context.Background(), req, "u")
	require.Error(t, err)
	assert.Equal(t, 0, f.files(t))
}

func TestDeleteRemovesFiles(t *testing.T) {
	f := newFixture(t, intake.Options{})
	ctx := context.Background()

	sub, err := f.svc.Submit(ctx, tenderRequest(t, map[string]string{"title": "x"}, map[string]string{"a.pdf": "1", "b.pdf": "2"}), "u")
	require.NoError(t, err)
	assert.Equal(t, 2, f.files(t))

	require.NoError(t, f.svc.Delete(ctx, sub.Tender.ID))
	assert.Equal(t, 0, f.files(t))

	_, err = f.svc.Get(ctx, sub.Tender.ID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	assert.True(t, errors.Is(f.svc.Delete(ctx, sub.Tender.ID), repository.ErrNotFound))
}

func TestListDefaults(t *testing.T) {
	f := newFixture(t, intake.Options{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Submit(ctx, tenderRequest(t, map[string]string{"title": "t"}, nil), "u")
		require.NoError(t, err)
	}
	tenders, total, err := f.svc.List(ctx, -5, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, tenders, 3)
}
