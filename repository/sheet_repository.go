package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/landfill/clairkeys/model"
)

// ErrSheetNotFound is returned when a sheet music record does not exist.
var ErrSheetNotFound = errors.New("sheet music not found")

// SheetRepository defines the interface for sheet music data operations.
type SheetRepository interface {
	Create(sheet *model.SheetMusic) error
	GetByID(id int64) (*model.SheetMusic, error)
	GetByJobID(jobID string) (*model.SheetMusic, error)
	ListByUser(userID int64) ([]*model.SheetMusic, error)
	ListPublic(limit int) ([]*model.SheetMusic, error)
	Update(sheet *model.SheetMusic) error
	UpdateStatus(id int64, status string) error
	SetAnimationKey(id int64, key string) error
	Delete(id int64) error

	CreateCategory(cat *model.Category) error
	ListCategories(userID int64) ([]*model.Category, error)
	DeleteCategory(id int64) error
}

// gormSheetRepository implements SheetRepository on GORM.
type gormSheetRepository struct {
	db *gorm.DB
}

// NewGormSheetRepository creates a new gormSheetRepository.
func NewGormSheetRepository(db *gorm.DB) SheetRepository {
	return &gormSheetRepository{db: db}
}

func (r *gormSheetRepository) Create(sheet *model.SheetMusic) error {
	if err := r.db.Create(sheet).Error; err != nil {
		return fmt.Errorf("failed to create sheet record: %w", err)
	}
	return nil
}

func (r *gormSheetRepository) GetByID(id int64) (*model.SheetMusic, error) {
	var sheet model.SheetMusic
	err := r.db.First(&sheet, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSheetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sheet %d: %w", id, err)
	}
	return &sheet, nil
}

func (r *gormSheetRepository) GetByJobID(jobID string) (*model.SheetMusic, error) {
	var sheet model.SheetMusic
	err := r.db.Where("job_id = ?", jobID).First(&sheet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSheetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sheet for job %s: %w", jobID, err)
	}
	return &sheet, nil
}

func (r *gormSheetRepository) ListByUser(userID int64) ([]*model.SheetMusic, error) {
	var sheets []*model.SheetMusic
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&sheets).Error; err != nil {
		return nil, fmt.Errorf("failed to list sheets for user %d: %w", userID, err)
	}
	return sheets, nil
}

func (r *gormSheetRepository) ListPublic(limit int) ([]*model.SheetMusic, error) {
	if limit <= 0 {
		limit = 50
	}
	var sheets []*model.SheetMusic
	err := r.db.Where("is_public = ? AND status = ?", true, model.SheetStatusCompleted).
		Order("created_at DESC").Limit(limit).Find(&sheets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list public sheets: %w", err)
	}
	return sheets, nil
}

func (r *gormSheetRepository) Update(sheet *model.SheetMusic) error {
	if err := r.db.Save(sheet).Error; err != nil {
		return fmt.Errorf("failed to update sheet %d: %w", sheet.ID, err)
	}
	return nil
}

func (r *gormSheetRepository) UpdateStatus(id int64, status string) error {
	err := r.db.Model(&model.SheetMusic{}).Where("id = ?", id).Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update status of sheet %d: %w", id, err)
	}
	return nil
}

func (r *gormSheetRepository) SetAnimationKey(id int64, key string) error {
	err := r.db.Model(&model.SheetMusic{}).Where("id = ?", id).
		Updates(map[string]interface{}{"animation_key": key, "status": model.SheetStatusCompleted}).Error
	if err != nil {
		return fmt.Errorf("failed to set animation key of sheet %d: %w", id, err)
	}
	return nil
}

func (r *gormSheetRepository) Delete(id int64) error {
	if err := r.db.Delete(&model.SheetMusic{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete sheet %d: %w", id, err)
	}
	return nil
}

func (r *gormSheetRepository) CreateCategory(cat *model.Category) error {
	if err := r.db.Create(cat).Error; err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (r *gormSheetRepository) ListCategories(userID int64) ([]*model.Category, error) {
	var cats []*model.Category
	if err := r.db.Where("user_id = ?", userID).Order("name").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories for user %d: %w", userID, err)
	}
	return cats, nil
}

func (r *gormSheetRepository) DeleteCategory(id int64) error {
	if err := r.db.Delete(&model.Category{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete category %d: %w", id, err)
	}
	return nil
}
