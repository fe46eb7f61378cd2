package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	field       string
	filename    string
	contentType string
	body        string
}

type formBuilder struct {
	buf bytes.Buffer
	w   *multipart.Writer
}

func newForm() *formBuilder {
	f := &formBuilder{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *formBuilder) field(name, value string) *formBuilder {
	_ = f.w.WriteField(name, value)
	return f
}

func (f *formBuilder) file(u upload) *formBuilder {
	if u.field == "" {
		u.field = FileFieldName
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, u.field, u.filename))
	if u.contentType != "" {
		h.Set("Content-Type", u.contentType)
	}
	pw, _ := f.w.CreatePart(h)
	_, _ = pw.Write([]byte(u.body))
	return f
}

func (f *formBuilder) request() *http.Request {
	_ = f.w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenders", &f.buf)
	req.Header.Set("Content-Type", f.w.FormDataContentType())
	return req
}

func testPipeline(t *testing.T, opts Options) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	opts.UploadRoot = root
	return New(opts, nil, nil), filepath.Join(root, DefaultCategory)
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func TestProcessRoadWorks(t *testing.T) {
	p, dir := testPipeline(t, Options{})
	req := newForm().
		field("title", "Road Works Tender").
		field("budget", `{"min":"10000","max":"20000"}`).
		field("fileDescriptions", `["Scope of work"]`).
		field("fileTypes", `["specification"]`).
		file(upload{filename: "Scope.pdf", contentType: "application/pdf", body: "%PDF-1.4\nscope of work\n"}).
		request()

	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Road Works Tender", res.Normalized.String("title"))
	assert.Equal(t, map[string]any{"min": 10000.0, "max": 20000.0, "currency": "ETB"}, res.Normalized.Object("budget"))

	require.Len(t, res.Attachments, 1)
	rec := res.Attachments[0]
	assert.Equal(t, "Scope of work", rec.Description)
	assert.Equal(t, "specification", rec.DocumentType)
	require.NotNil(t, rec.ContentHash)
	assert.Len(t, *rec.ContentHash, 64)
	assert.Equal(t, "Scope.pdf", rec.File.OriginalName)
	assert.True(t, strings.HasPrefix(rec.File.StoredName, "scope-"))
	assert.True(t, strings.HasSuffix(rec.File.StoredName, ".pdf"))
	assert.Equal(t, 1, countFiles(t, dir))
}

func TestProcessMaxFileCountBoundary(t *testing.T) {
	build := func(n int) *http.Request {
		f := newForm().field("title", "Boundary")
		for i := 0; i < n; i++ {
			f.file(upload{filename: fmt.Sprintf("doc%d.txt", i), contentType: "text/plain", body: "content"})
		}
		return f.request()
	}

	t.Run("exactly max", func(t *testing.T) {
		p, dir := testPipeline(t, Options{MaxFiles: 3})
		res, err := p.Process(context.Background(), build(3))
		require.NoError(t, err)
		assert.Len(t, res.Attachments, 3)
		assert.Equal(t, 3, countFiles(t, dir))
	})

	t.Run("one over max", func(t *testing.T) {
		p, dir := testPipeline(t, Options{MaxFiles: 3})
		_, err := p.Process(context.Background(), build(4))
		require.Error(t, err)

		var ierr *Error
		require.True(t, errors.As(err, &ierr))
		assert.Equal(t, KindTooManyFiles, ierr.Kind)
		assert.Equal(t, StageValidating, ierr.Stage)
		assert.Len(t, ierr.Stored, 3)
		assert.Equal(t, 3, countFiles(t, dir), "only files accepted before the limit are on disk")
	})
}

func TestProcessRejectedFileWritesNothing(t *testing.T) {
	p, dir := testPipeline(t, Options{})
	req := newForm().
		file(upload{filename: "ok.pdf", contentType: "application/pdf", body: "%PDF-1.4"}).
		file(upload{filename: "virus.exe", contentType: "application/x-msdownload", body: "MZ"}).
		file(upload{filename: "later.pdf", contentType: "application/pdf", body: "%PDF-1.4"}).
		request()

	_, err := p.Process(context.Background(), req)
	assert.Equal(t, KindUnsupportedMediaType, KindOf(err))
	assert.Equal(t, 1, countFiles(t, dir))

	var ierr *Error
	require.True(t, errors.As(err, &ierr))
	require.Len(t, ierr.Stored, 1)
	assert.Equal(t, "ok.pdf", ierr.Stored[0].OriginalName)
}

func TestProcessOversizedFileIsRemoved(t *testing.T) {
	p, dir := testPipeline(t, Options{MaxFileBytes: 16})
	req := newForm().
		file(upload{filename: "big.txt", contentType: "text/plain", body: strings.Repeat("x", 17)}).
		request()

	_, err := p.Process(context.Background(), req)
	assert.Equal(t, KindFileTooLarge, KindOf(err))
	assert.Equal(t, 0, countFiles(t, dir))
}

func TestProcessInfersTypeFromExtension(t *testing.T) {
	p, _ := testPipeline(t, Options{})
	req := newForm().
		file(upload{filename: "prices.xlsx", contentType: "application/octet-stream", body: "PK"}).
		request()

	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", res.Attachments[0].File.MimeType)
}

func TestProcessIgnoresOtherFileFields(t *testing.T) {
	p, dir := testPipeline(t, Options{})
	req := newForm().
		file(upload{field: "avatar", filename: "me.png", contentType: "image/png", body: "png"}).
		file(upload{field: "documents[]", filename: "a.txt", contentType: "text/plain", body: "a"}).
		request()

	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "a.txt", res.Attachments[0].File.OriginalName)
	assert.Equal(t, 1, countFiles(t, dir))
}

func TestProcessNotMultipart(t *testing.T) {
	p, _ := testPipeline(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	_, err := p.Process(context.Background(), req)
	assert.Equal(t, KindMalformedRequest, KindOf(err))
}

func TestProcessTruncatedBody(t *testing.T) {
	p, _ := testPipeline(t, Options{})
	body := "--XYZ\r\nContent-Disposition: form-data; name=\"title\"\r\n\r\nhalf"
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=XYZ")

	_, err := p.Process(context.Background(), req)
	assert.Equal(t, KindMalformedRequest, KindOf(err))
}

// disconnectingBody serves r and then fails the read after cancelling the
// request context, the way a server sees a client that hangs up mid-upload.
type disconnectingBody struct {
	r      io.Reader
	cancel context.CancelFunc
}

func (b *disconnectingBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		b.cancel()
		return n, errors.New("connection reset by peer")
	}
	return n, err
}

func TestProcessCancelledRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	root := t.TempDir()
	p := New(Options{UploadRoot: root}, nil, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Process(ctx, newForm().field("title", "x").request())
	var ierr *Error
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, KindCancelled, ierr.Kind)
	assert.Equal(t, StatusClientClosedRequest, ierr.Kind.HTTPStatus())

	form := newForm().field("title", "x").file(upload{filename: "big.pdf", contentType: "application/pdf", body: strings.Repeat("x", 4096)})
	full := form.request()
	raw, err := io.ReadAll(full.Body)
	require.NoError(t, err)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenders", &disconnectingBody{r: bytes.NewReader(raw[:len(raw)/2]), cancel: cancel})
	req.Header.Set("Content-Type", full.Header.Get("Content-Type"))
	_, err = p.Process(ctx, req)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, 0, countFiles(t, filepath.Join(root, DefaultCategory)))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues(string(KindCancelled))))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.requests.WithLabelValues(string(KindMalformedRequest))))
}

func TestProcessFieldBytesLimit(t *testing.T) {
	p, _ := testPipeline(t, Options{MaxFieldBytes: 8})
	req := newForm().field("title", "short").field("description", "too long now").request()

	_, err := p.Process(context.Background(), req)
	assert.Equal(t, KindMalformedRequest, KindOf(err))
}

func TestProcessStrictCoercion(t *testing.T) {
	req := func() *http.Request {
		return newForm().field("title", "x").field("estimatedValue", "a lot").request()
	}

	lenient, _ := testPipeline(t, Options{})
	res, err := lenient.Process(context.Background(), req())
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "estimatedValue", res.Warnings[0].Field)

	strict, _ := testPipeline(t, Options{StrictCoercion: true})
	_, err = strict.Process(context.Background(), req())
	var ierr *Error
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, KindCoercionDegraded, ierr.Kind)
	assert.Equal(t, StageNormalizing, ierr.Stage)
	assert.Equal(t, 422, ierr.Kind.HTTPStatus())
}

func TestProcessRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	root := t.TempDir()
	p := New(Options{UploadRoot: root}, nil, metrics)

	ok := newForm().field("estimatedValue", "n/a").file(upload{filename: "a.txt", contentType: "text/plain", body: "abcd"}).request()
	_, err = p.Process(context.Background(), ok)
	require.NoError(t, err)

	bad := newForm().file(upload{filename: "x.exe", contentType: "application/x-msdownload", body: "MZ"}).request()
	_, err = p.Process(context.Background(), bad)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(string(KindUnsupportedMediaType))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.filesStored))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.bytesStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.warnings.WithLabelValues(string(KindCoercionDegraded))))

	again, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, metrics.requests, again.requests)
}
