package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"gorm.io/gorm"
)

type RawItemRepository struct {
	db *gorm.DB
}

func NewRawItemRepository(db *gorm.DB) *RawItemRepository {
	return &RawItemRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *RawItemRepository) WithTx(tx *gorm.DB) *RawItemRepository {
	return &RawItemRepository{db: tx}
}

func (r *RawItemRepository) Create(ctx context.Context, item *entity.RawItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// GetByID 获取原料及其变体
func (r *RawItemRepository) GetByID(ctx context.Context, id string) (*entity.RawItem, error) {
	var item entity.RawItem
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// GetByIDs 批量获取原料，按ID索引
func (r *RawItemRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.RawItem, error) {
	result := make(map[string]*entity.RawItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var items []entity.RawItem
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id IN ?", ids).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	for i := range items {
		result[items[i].ID] = &items[i]
	}
	return result, nil
}

// UpdateStock 按版本号写回库存，版本不匹配返回 ErrVersionConflict
func (r *RawItemRepository) UpdateStock(ctx context.Context, item *entity.RawItem, variant *entity.RawItemVariant) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&entity.RawItem{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]interface{}{
			"quantity":   item.Quantity,
			"version":    item.Version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	item.Version++
	item.UpdatedAt = now

	if variant != nil {
		err := r.db.WithContext(ctx).Model(&entity.RawItemVariant{}).
			Where("id = ? AND raw_item_id = ?", variant.ID, item.ID).
			Updates(map[string]interface{}{
				"quantity":   variant.Quantity,
				"updated_at": now,
			}).Error
		if err != nil {
			return err
		}
		variant.UpdatedAt = now
	}
	return nil
}

func (r *RawItemRepository) CreateTransaction(ctx context.Context, tx *entity.StockTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

type RawItemListParams struct {
	Keyword string
	Page    int
	Size    int
}

func (r *RawItemRepository) List(ctx context.Context, params RawItemListParams) ([]entity.RawItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.RawItem{})
	if params.Keyword != "" {
		kw := "%" + params.Keyword + "%"
		query = query.Where("LOWER(code) LIKE LOWER(?) OR LOWER(name) LIKE LOWER(?)", kw, kw)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size := normalizePage(params.Page, params.Size)
	var items []entity.RawItem
	err := query.Preload("Variants").Order("updated_at DESC").
		Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}

// ListTransactions 库存流水，按时间倒序
func (r *RawItemRepository) ListTransactions(ctx context.Context, rawItemID string, page, size int) ([]entity.StockTransaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.StockTransaction{})
	if rawItemID != "" {
		query = query.Where("raw_item_id = ?", rawItemID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size = normalizePage(page, size)
	var txs []entity.StockTransaction
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&txs).Error
	return txs, total, err
}

// DB 返回底层db用于事务
func (r *RawItemRepository) DB() *gorm.DB {
	return r.db
}
