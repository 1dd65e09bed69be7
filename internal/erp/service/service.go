package service

import (
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"go.uber.org/zap"
)

// Options 服务依赖，零值字段使用默认实现
type Options struct {
	Logger          *zap.Logger
	Locker          StockLocker
	Numberer        *Numberer
	Metrics         *Metrics
	StockRetries    int
	WorkOrderPrefix string
}

// Services ERP 服务集合
type Services struct {
	Catalog       *CatalogService
	Inventory     *InventoryService
	Manufacturing *ManufacturingService
	Quotation     *QuotationService
}

func NewServices(repos *repository.Repositories, opts Options) *Services {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalStockLocker()
	}
	if opts.Numberer == nil {
		opts.Numberer = NewNumberer(nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.WorkOrderPrefix == "" {
		opts.WorkOrderPrefix = "WO"
	}

	inventory := NewInventoryService(repos.RawItem, opts.Locker, opts.Metrics, opts.Logger, opts.StockRetries)
	manufacturing := NewManufacturingService(repos, inventory, opts.Numberer, opts.Metrics, opts.Logger, opts.WorkOrderPrefix)
	return &Services{
		Catalog:       NewCatalogService(repos.Product, repos.RawItem),
		Inventory:     inventory,
		Manufacturing: manufacturing,
		Quotation:     NewQuotationService(repos.Quotation, manufacturing, opts.Numberer, opts.Logger),
	}
}
