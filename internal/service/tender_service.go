package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/parisxmas/TenderDesk/internal/intake"
	"github.com/parisxmas/TenderDesk/internal/models"
	"github.com/parisxmas/TenderDesk/internal/repository"
)

// Intake is the part of the pipeline the service drives.
type Intake interface {
	Process(ctx context.Context, r *http.Request) (*intake.Result, error)
}

// Submission is what a successful Submit hands back to the HTTP layer.
type Submission struct {
	Tender      *models.Tender               `json:"tender"`
	Normalized  *models.NormalizedSubmission `json:"normalized"`
	Attachments []models.AttachmentRecord    `json:"attachments"`
	Warnings    []intake.Warning             `json:"warnings"`
	Duplicates  []models.TenderDocument      `json:"duplicates"`
}

type TenderService struct {
	intake  Intake
	tenders *repository.TenderRepo
	logger  *slog.Logger
}

func NewTenderService(in Intake, tenders *repository.TenderRepo, logger *slog.Logger) *TenderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenderService{intake: in, tenders: tenders, logger: logger.With("component", "tenders")}
}

// Submit runs intake on r and persists the result. Files stored by a failed
// intake or a failed insert are removed; on success they belong to the new
// tender.
func (s *TenderService) Submit(ctx context.Context, r *http.Request, submittedBy string) (*Submission, error) {
	res, err := s.intake.Process(ctx, r)
	if err != nil {
		var ierr *intake.Error
		if errors.As(err, &ierr) && len(ierr.Stored) > 0 {
			s.removeStored(ierr.Stored)
		}
		return nil, err
	}

	data, err := json.Marshal(res.Normalized)
	if err != nil {
		s.removeAttachments(res.Attachments)
		return nil, fmt.Errorf("encode normalized submission: %w", err)
	}

	t := &models.Tender{
		ID:          uuid.NewString(),
		Title:       res.Normalized.String(intake.FieldTitle),
		Reference:   res.Normalized.String(intake.FieldReference),
		Category:    res.Normalized.String(intake.FieldCategory),
		Data:        string(data),
		SubmittedBy: submittedBy,
	}
	if d, ok := res.Normalized.Time(intake.FieldDeadline); ok {
		t.Deadline = &d
	}
	for i, a := range res.Attachments {
		t.Documents = append(t.Documents, models.TenderDocument{
			ID:           uuid.NewString(),
			Position:     i,
			OriginalName: a.File.OriginalName,
			StoredName:   a.File.StoredName,
			Path:         a.File.Path,
			MimeType:     a.File.MimeType,
			DetectedType: a.DetectedType,
			TypeMismatch: a.TypeMismatch,
			UploadKey:    a.Key,
			Size:         a.File.Size,
			Description:  a.Description,
			DocumentType: a.DocumentType,
			ContentHash:  a.ContentHash,
			PageCount:    a.PageCount,
		})
	}

	duplicates, err := s.duplicates(ctx, res.Attachments)
	if err != nil {
		s.logger.Warn("duplicate lookup failed", "error", err)
	}

	if err := s.tenders.Create(ctx, t); err != nil {
		s.removeAttachments(res.Attachments)
		return nil, err
	}
	s.logger.Info("tender created", "id", t.ID, "documents", len(t.Documents), "warnings", len(res.Warnings), "duplicates", len(duplicates))

	return &Submission{
		Tender:      t,
		Normalized:  res.Normalized,
		Attachments: res.Attachments,
		Warnings:    res.Warnings,
		Duplicates:  duplicates,
	}, nil
}

// duplicates finds earlier documents sharing a content hash with any new
// attachment. A nil hash is unknown and never matches.
func (s *TenderService) duplicates(ctx context.Context, attachments []models.AttachmentRecord) ([]models.TenderDocument, error) {
	out := []models.TenderDocument{}
	seen := make(map[string]bool)
	for _, a := range attachments {
		if a.ContentHash == nil || seen[*a.ContentHash] {
			continue
		}
		seen[*a.ContentHash] = true
		docs, err := s.tenders.FindByHash(ctx, *a.ContentHash)
		if err != nil {
			return out, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

func (s *TenderService) Get(ctx context.Context, id string) (*models.Tender, error) {
	return s.tenders.FindByID(ctx, id)
}

func (s *TenderService) List(ctx context.Context, skip, limit int) ([]models.Tender, int64, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.tenders.FindAll(ctx, skip, limit)
}

// Delete removes the tender and the stored files of its documents.
func (s *TenderService) Delete(ctx context.Context, id string) error {
	t, err := s.tenders.Delete(ctx, id)
	if err != nil {
		return err
	}
	for _, d := range t.Documents {
		s.removeFile(d.Path)
	}
	s.logger.Info("tender deleted", "id", id, "documents", len(t.Documents))
	return nil
}

// OpenDocument returns the document row and an open handle on its bytes.
// The caller closes the file.
func (s *TenderService) OpenDocument(ctx context.Context, tenderID, docID string) (*models.TenderDocument, *os.File, error) {
	doc, err := s.tenders.FindDocument(ctx, tenderID, docID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(doc.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open document: %w", err)
	}
	return doc, f, nil
}

func (s *TenderService) FindByHash(ctx context.Context, hash string) ([]models.TenderDocument, error) {
	return s.tenders.FindByHash(ctx, hash)
}

func (s *TenderService) removeStored(files []models.StoredFile) {
	for _, f := range files {
		s.removeFile(f.Path)
	}
}

func (s *TenderService) removeAttachments(records []models.AttachmentRecord) {
	for _, a := range records {
		s.removeFile(a.File.Path)
	}
}

func (s *TenderService) removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("remove stored file", "path", path, "error", err)
	}
}
