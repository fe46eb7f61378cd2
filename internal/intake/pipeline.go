package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/parisxmas/TenderDesk/internal/models"
)

// Result is the pipeline handoff to the caller. Ownership of every file in
// Attachments passes to the caller.
type Result struct {
	Normalized  *models.NormalizedSubmission `json:"normalized"`
	Attachments []models.AttachmentRecord    `json:"attachments"`
	Warnings    []Warning                    `json:"warnings"`
}

// Pipeline turns one multipart request into a normalized submission and a
// manifest of stored files.
type Pipeline struct {
	opts       Options
	gate       *Gatekeeper
	alloc      *Allocator
	normalizer *Normalizer
	correlator *Correlator
	logger     *slog.Logger
	metrics    *Metrics
}

func New(opts Options, logger *slog.Logger, metrics *Metrics) *Pipeline {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "intake")
	return &Pipeline{
		opts:       opts,
		gate:       NewGatekeeper(opts.AllowedTypes, opts.MaxFileBytes, opts.MaxFiles),
		alloc:      NewAllocator(opts.UploadRoot, opts.Category),
		normalizer: NewNormalizer(DefaultSchema(), opts.DefaultCurrency, logger),
		correlator: NewCorrelator(opts.HashWorkers, logger),
		logger:     logger,
		metrics:    metrics,
	}
}

// Options returns the effective options after defaults were applied.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Process caps the request body at MaxRequestBytes and runs the pipeline
// over its multipart stream.
func (p *Pipeline) Process(ctx context.Context, r *http.Request) (*Result, error) {
	started := time.Now()
	r.Body = http.MaxBytesReader(nil, r.Body, p.opts.MaxRequestBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		ierr := wrapError(KindMalformedRequest, err, "request is not multipart/form-data")
		ierr.Stage = StageReceiving
		p.finish(started, nil, ierr)
		return nil, ierr
	}
	return p.run(ctx, started, mr)
}

// ProcessMultipart runs the pipeline over an already opened multipart stream.
func (p *Pipeline) ProcessMultipart(ctx context.Context, mr *multipart.Reader) (*Result, error) {
	return p.run(ctx, time.Now(), mr)
}

type intakeRun struct {
	stage  Stage
	stored []models.StoredFile
}

func (s *intakeRun) fail(err *Error) *Error {
	err.Stage = s.stage
	err.Stored = append([]models.StoredFile(nil), s.stored...)
	return err
}

func (p *Pipeline) run(ctx context.Context, started time.Time, mr *multipart.Reader) (*Result, error) {
	state := &intakeRun{stage: StageReceiving}
	fields := make(map[string][]string)
	var fieldBytes int64

	fail := func(err *Error) (*Result, error) {
		err = state.fail(err)
		p.finish(started, nil, err)
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(wrapError(KindCancelled, err, "request cancelled"))
		}
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(transportError(ctx, err))
		}
		state.stage = StageValidating

		name := strings.TrimSuffix(part.FormName(), "[]")
		filename := part.FileName()
		isFile := filename != "" || (name == FileFieldName && part.Header.Get("Content-Type") != "")

		if !isFile {
			remaining := p.opts.MaxFieldBytes - fieldBytes
			data, err := io.ReadAll(io.LimitReader(part, remaining+1))
			part.Close()
			if err != nil {
				return fail(transportError(ctx, err))
			}
			if int64(len(data)) > remaining {
				return fail(newError(KindMalformedRequest, "text fields exceed %d bytes", p.opts.MaxFieldBytes))
			}
			fieldBytes += int64(len(data))
			fields[part.FormName()] = append(fields[part.FormName()], string(data))
			continue
		}

		if name != FileFieldName || filename == "" {
			if _, err := io.Copy(io.Discard, part); err != nil {
				part.Close()
				return fail(transportError(ctx, err))
			}
			part.Close()
			p.logger.Debug("ignored file part", "field", part.FormName(), "filename", filename)
			continue
		}

		header := FileHeader{
			Index:     len(state.stored),
			Filename:  filename,
			MediaType: resolveMediaType(part.Header.Get("Content-Type"), filename),
			Size:      declaredSize(part.Header.Get("Content-Length")),
		}
		if err := p.gate.Accept(header); err != nil {
			part.Close()
			var ierr *Error
			errors.As(err, &ierr)
			return fail(ierr)
		}

		state.stage = StageStoring
		stored, err := p.alloc.Store(part, filename, header.MediaType, p.gate.MaxFileBytes())
		part.Close()
		if err != nil {
			var ierr *Error
			if errors.As(err, &ierr) {
				return fail(ierr)
			}
			return fail(transportError(ctx, err))
		}
		state.stored = append(state.stored, *stored)
		p.metrics.recordFile(stored.Size)
		p.logger.Debug("stored file", "index", header.Index, "original", filename, "stored", stored.StoredName, "size", stored.Size)
	}

	state.stage = StageNormalizing
	normalized, warnings := p.normalizer.Normalize(fields)
	if p.opts.StrictCoercion {
		if degraded := degradedFields(warnings); len(degraded) > 0 {
			ierr := newError(KindCoercionDegraded, "fields could not be decoded faithfully: %s", strings.Join(degraded, ", "))
			return fail(ierr)
		}
	}

	state.stage = StageCorrelating
	records, hashWarnings := p.correlator.CorrelateWith(ctx, state.stored, MetadataFrom(normalized))
	warnings = append(warnings, hashWarnings...)

	state.stage = StageDone
	res := &Result{Normalized: normalized, Attachments: records, Warnings: warnings}
	p.finish(started, res, nil)
	return res, nil
}

func (p *Pipeline) finish(started time.Time, res *Result, err error) {
	var warnings []Warning
	if res != nil {
		warnings = res.Warnings
	}
	p.metrics.recordRequest(started, warnings, err)
	if err != nil {
		var ierr *Error
		errors.As(err, &ierr)
		p.logger.Warn("intake failed", "stage", ierr.Stage, "kind", ierr.Kind, "orphaned", len(ierr.Stored), "error", err)
		return
	}
	p.logger.Info("intake done",
		"files", len(res.Attachments),
		"fields", len(res.Normalized.Values),
		"warnings", len(res.Warnings),
		"duration", time.Since(started))
}

// transportError classifies a body read failure. A read that fails because
// the request context ended is a cancellation, not a malformed body.
func transportError(ctx context.Context, err error) *Error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return wrapError(KindRequestTooLarge, err, "request body exceeds %d bytes", mbe.Limit)
	}
	if cerr := ctx.Err(); cerr != nil {
		return wrapError(KindCancelled, errors.Join(cerr, err), "request cancelled while reading body")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapError(KindCancelled, err, "request cancelled while reading body")
	}
	return wrapError(KindMalformedRequest, err, "read multipart body")
}

func declaredSize(v string) int64 {
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func degradedFields(warnings []Warning) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range warnings {
		if w.Kind != KindCoercionDegraded || seen[w.Field] {
			continue
		}
		seen[w.Field] = true
		out = append(out, w.Field)
	}
	return out
}
