package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"gorm.io/gorm"
)

// ProductRepository 产品目录仓库
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create 创建产品（含变体、BOM行、工序）
func (r *ProductRepository) Create(ctx context.Context, p *entity.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID 获取产品及其完整BOM
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	var p entity.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Materials", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Operations", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

type ProductListParams struct {
	Keyword string
	Page    int
	Size    int
}

func (r *ProductRepository) List(ctx context.Context, params ProductListParams) ([]entity.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Product{})
	if params.Keyword != "" {
		kw := "%" + params.Keyword + "%"
		query = query.Where("LOWER(code) LIKE LOWER(?) OR LOWER(name) LIKE LOWER(?)", kw, kw)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size := normalizePage(params.Page, params.Size)
	var products []entity.Product
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&products).Error
	return products, total, err
}
