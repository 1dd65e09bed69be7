package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkOrderRepository struct {
	db *gorm.DB
}

func NewWorkOrderRepository(db *gorm.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *WorkOrderRepository) WithTx(tx *gorm.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: tx}
}

// Create 创建工单（含工序和物料行）
func (r *WorkOrderRepository) Create(ctx context.Context, wo *entity.WorkOrder) error {
	return r.db.WithContext(ctx).Create(wo).Error
}

func (r *WorkOrderRepository) GetByID(ctx context.Context, id string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := r.db.WithContext(ctx).
		Preload("Operations", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Materials", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_no ASC")
		}).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&wo).Error
	if err != nil {
		return nil, translate(err)
	}
	return &wo, nil
}

// UpdateHeader 只更新工单头
func (r *WorkOrderRepository) UpdateHeader(ctx context.Context, wo *entity.WorkOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(wo).Error
}

// Update 更新工单头、物料行和工序
func (r *WorkOrderRepository) Update(ctx context.Context, wo *entity.WorkOrder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(wo).Error; err != nil {
			return err
		}
		for i := range wo.Materials {
			if err := tx.Save(&wo.Materials[i]).Error; err != nil {
				return err
			}
		}
		for i := range wo.Operations {
			if err := tx.Save(&wo.Operations[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkMaterialIssued 仅当物料行尚未发料时写入发料结果
func (r *WorkOrderRepository) MarkMaterialIssued(ctx context.Context, m *entity.WorkOrderMaterial) error {
	return r.transitionMaterial(ctx, m, "allocation_status <> ?", entity.AllocIssued)
}

// MarkMaterialReturned 仅当物料行仍为已发料时写入退料结果
func (r *WorkOrderRepository) MarkMaterialReturned(ctx context.Context, m *entity.WorkOrderMaterial) error {
	return r.transitionMaterial(ctx, m, "allocation_status = ?", entity.AllocIssued)
}

func (r *WorkOrderRepository) transitionMaterial(ctx context.Context, m *entity.WorkOrderMaterial, cond string, status string) error {
	res := r.db.WithContext(ctx).Model(&entity.WorkOrderMaterial{}).
		Where("id = ?", m.ID).
		Where(cond, status).
		Updates(map[string]interface{}{
			"quantity_allocated": m.QuantityAllocated,
			"quantity_issued":    m.QuantityIssued,
			"allocation_status":  m.AllocationStatus,
			"issued_at":          m.IssuedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleMaterial
	}
	return nil
}

func (r *WorkOrderRepository) UpdateOperation(ctx context.Context, op *entity.WorkOrderOperation) error {
	return r.db.WithContext(ctx).Save(op).Error
}

type WOListParams struct {
	Status      string
	ProductID   string
	QuotationID string
	Keyword     string
	Page        int
	Size        int
}

func (r *WorkOrderRepository) List(ctx context.Context, params WOListParams) ([]entity.WorkOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.WorkOrder{}).Where("deleted_at IS NULL")
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.ProductID != "" {
		query = query.Where("product_id = ?", params.ProductID)
	}
	if params.QuotationID != "" {
		query = query.Where("quotation_id = ?", params.QuotationID)
	}
	if params.Keyword != "" {
		kw := "%" + params.Keyword + "%"
		query = query.Where("LOWER(wo_number) LIKE LOWER(?) OR LOWER(product_name) LIKE LOWER(?)", kw, kw)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size := normalizePage(params.Page, params.Size)
	var wos []entity.WorkOrder
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&wos).Error
	return wos, total, err
}

// ListChildren 按回溯引用查询拆分出的子工单
func (r *WorkOrderRepository) ListChildren(ctx context.Context, parentID string) ([]entity.WorkOrder, error) {
	var wos []entity.WorkOrder
	err := r.db.WithContext(ctx).
		Preload("Materials", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_no ASC")
		}).
		Where("parent_work_order_id = ? AND deleted_at IS NULL", parentID).
		Order("created_at ASC").
		Find(&wos).Error
	return wos, err
}

// CountChildren 子工单数量
func (r *WorkOrderRepository) CountChildren(ctx context.Context, parentID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.WorkOrder{}).
		Where("parent_work_order_id = ?", parentID).
		Count(&n).Error
	return n, err
}

// DB 返回底层db用于事务
func (r *WorkOrderRepository) DB() *gorm.DB {
	return r.db
}
