package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrStaleMaterial   = errors.New("material line already changed")
)

// Repositories ERP 仓库集合
type Repositories struct {
	Product   *ProductRepository
	RawItem   *RawItemRepository
	WorkOrder *WorkOrderRepository
	Quotation *QuotationRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Product:   NewProductRepository(db),
		RawItem:   NewRawItemRepository(db),
		WorkOrder: NewWorkOrderRepository(db),
		Quotation: NewQuotationRepository(db),
	}
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return page, size
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
