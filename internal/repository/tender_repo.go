package repository

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/parisxmas/TenderDesk/internal/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")

const defaultHashCacheSize = 1024

type TenderRepo struct {
	db     *gorm.DB
	byHash *lru.Cache[string, []models.TenderDocument]
}

func NewTenderRepo(db *gorm.DB, hashCacheSize int) (*TenderRepo, error) {
	if hashCacheSize <= 0 {
		hashCacheSize = defaultHashCacheSize
	}
	cache, err := lru.New[string, []models.TenderDocument](hashCacheSize)
	if err != nil {
		return nil, fmt.Errorf("hash cache: %w", err)
	}
	return &TenderRepo{db: db, byHash: cache}, nil
}

// Create inserts the tender and its documents in one transaction.
func (r *TenderRepo) Create(ctx context.Context, t *models.Tender) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(t).Error
	})
	if err != nil {
		return fmt.Errorf("create tender: %w", err)
	}
	r.invalidate(t.Documents)
	return nil
}

func (r *TenderRepo) FindByID(ctx context.Context, id string) (*models.Tender, error) {
	var t models.Tender
	err := r.db.WithContext(ctx).
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindAll returns tenders newest first, without their documents.
func (r *TenderRepo) FindAll(ctx context.Context, skip, limit int) ([]models.Tender, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&models.Tender{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	tenders := make([]models.Tender, 0, limit)
	err := r.db.WithContext(ctx).
		Order("created_at DESC").Order("id ASC").
		Offset(skip).Limit(limit).
		Find(&tenders).Error
	if err != nil {
		return nil, 0, err
	}
	return tenders, total, nil
}

func (r *TenderRepo) FindDocument(ctx context.Context, tenderID, docID string) (*models.TenderDocument, error) {
	var d models.TenderDocument
	err := r.db.WithContext(ctx).First(&d, "id = ? AND tender_id = ?", docID, tenderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Delete removes the tender and its document rows and returns what was
// deleted so the caller can release the stored files.
func (r *TenderRepo) Delete(ctx context.Context, id string) (*models.Tender, error) {
	var deleted *models.Tender
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Tender
		if err := tx.Preload("Documents").First(&t, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("tender_id = ?", id).Delete(&models.TenderDocument{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&t).Error; err != nil {
			return err
		}
		deleted = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.invalidate(deleted.Documents)
	return deleted, nil
}

// FindByHash returns every stored document with the given content hash,
// oldest first. Results are cached until a tender touching the hash is
// created or deleted.
func (r *TenderRepo) FindByHash(ctx context.Context, hash string) ([]models.TenderDocument, error) {
	if hash == "" {
		return nil, nil
	}
	if docs, ok := r.byHash.Get(hash); ok {
		return docs, nil
	}
	var docs []models.TenderDocument
	err := r.db.WithContext(ctx).
		Where("content_hash = ?", hash).
		Order("created_at ASC").Order("position ASC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	r.byHash.Add(hash, docs)
	return docs, nil
}

func (r *TenderRepo) invalidate(docs []models.TenderDocument) {
	for _, d := range docs {
		if d.ContentHash != nil {
			r.byHash.Remove(*d.ContentHash)
		}
	}
}
