package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuotationRepository struct {
	db *gorm.DB
}

func NewQuotationRepository(db *gorm.DB) *QuotationRepository {
	return &QuotationRepository{db: db}
}

func (r *QuotationRepository) WithTx(tx *gorm.DB) *QuotationRepository {
	return &QuotationRepository{db: tx}
}

func (r *QuotationRepository) Create(ctx context.Context, q *entity.Quotation) error {
	return r.db.WithContext(ctx).Create(q).Error
}

func (r *QuotationRepository) GetByID(ctx context.Context, id string) (*entity.Quotation, error) {
	var q entity.Quotation
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_no ASC")
		}).
		Where("id = ?", id).
		First(&q).Error
	if err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

// MarkApproved 仅当报价单仍为待审批时更新，返回是否更新成功
func (r *QuotationRepository) MarkApproved(ctx context.Context, q *entity.Quotation) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.Quotation{}).
		Where("id = ? AND status = ?", q.ID, entity.QuotationStatusPending).
		Updates(map[string]interface{}{
			"status":      entity.QuotationStatusApproved,
			"approved_by": q.ApprovedBy,
			"approved_at": q.ApprovedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *QuotationRepository) Update(ctx context.Context, q *entity.Quotation) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(q).Error
}
