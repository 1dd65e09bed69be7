package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogService 产品目录（BOM、工序、变体）
type CatalogService struct {
	repo    *repository.ProductRepository
	rawRepo *repository.RawItemRepository
}

func NewCatalogService(repo *repository.ProductRepository, rawRepo *repository.RawItemRepository) *CatalogService {
	return &CatalogService{repo: repo, rawRepo: rawRepo}
}

type CreateProductRequest struct {
	Code       string                   `json:"code" binding:"required"`
	Name       string                   `json:"name" binding:"required"`
	Variants   []CreateVariantRequest   `json:"variants"`
	Materials  []CreateMaterialRequest  `json:"materials"`
	Operations []CreateOperationRequest `json:"operations"`
}

type CreateVariantRequest struct {
	ID         string            `json:"id"`
	SKU        string            `json:"sku"`
	Attributes entity.Attributes `json:"attributes"`
	StockQty   float64           `json:"stock_qty"`
}

// CreateMaterialRequest BOM行，VariantSKU 为空表示所有变体通用
type CreateMaterialRequest struct {
	VariantSKU         string             `json:"variant_sku"`
	RawItemID          string             `json:"raw_item_id" binding:"required"`
	QuantityPerUnit    float64            `json:"quantity_per_unit" binding:"gte=0"`
	Unit               string             `json:"unit"`
	UnitCost           *decimal.Decimal   `json:"unit_cost"`
	RawItemVariantID   string             `json:"raw_item_variant_id"`
	RawItemCombination entity.Combination `json:"raw_item_combination"`
}

type CreateOperationRequest struct {
	OperationType    string `json:"operation_type" binding:"required"`
	MachineType      string `json:"machine_type"`
	EstimatedSeconds int    `json:"estimated_seconds"`
}

// CreateProduct 创建产品，BOM行引用的原料必须存在，未填单价时取原料单价
func (s *CatalogService) CreateProduct(ctx context.Context, req CreateProductRequest, userID string) (*entity.Product, error) {
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, validationf("code", "款号和名称不能为空")
	}
	p := &entity.Product{
		ID:        uuid.New().String(),
		Code:      strings.TrimSpace(req.Code),
		Name:      strings.TrimSpace(req.Name),
		CreatedBy: userID,
	}

	skuToID := make(map[string]string, len(req.Variants))
	for _, v := range req.Variants {
		id := v.ID
		if id == "" {
			id = uuid.New().String()
		}
		p.Variants = append(p.Variants, entity.ProductVariant{
			ID:         id,
			ProductID:  p.ID,
			SKU:        v.SKU,
			Attributes: v.Attributes,
			StockQty:   v.StockQty,
		})
		if v.SKU != "" {
			skuToID[v.SKU] = id
		}
	}

	ids := make([]string, 0, len(req.Materials))
	for _, m := range req.Materials {
		ids = append(ids, m.RawItemID)
	}
	items, err := s.rawRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, &PersistenceError{Op: "读取原料", Err: err}
	}

	for i, m := range req.Materials {
		item, ok := items[m.RawItemID]
		if !ok {
			return nil, &NotFoundError{Resource: "原料", ID: m.RawItemID}
		}
		if m.QuantityPerUnit < 0 {
			return nil, validationf("materials", "第 %d 行单件用量不能为负数", i+1)
		}
		variantID := ""
		if m.VariantSKU != "" {
			id, ok := skuToID[m.VariantSKU]
			if !ok {
				return nil, &NotFoundError{Resource: "产品变体", ID: p.Code + "/" + m.VariantSKU}
			}
			variantID = id
		}
		unit := m.Unit
		if unit == "" {
			unit = item.Unit
		}
		unitCost := item.UnitCost
		if m.UnitCost != nil {
			unitCost = *m.UnitCost
		}
		p.Materials = append(p.Materials, entity.ProductMaterial{
			ID:                 uuid.New().String(),
			ProductID:          p.ID,
			VariantID:          variantID,
			Sequence:           i + 1,
			RawItemID:          item.ID,
			RawItemCode:        item.Code,
			RawItemName:        item.Name,
			QuantityPerUnit:    m.QuantityPerUnit,
			Unit:               unit,
			UnitCost:           unitCost,
			RawItemVariantID:   m.RawItemVariantID,
			RawItemCombination: m.RawItemCombination,
		})
	}

	for i, op := range req.Operations {
		p.Operations = append(p.Operations, entity.ProductOperation{
			ID:               uuid.New().String(),
			ProductID:        p.ID,
			Sequence:         i + 1,
			OperationType:    op.OperationType,
			MachineType:      op.MachineType,
			EstimatedSeconds: op.EstimatedSeconds,
		})
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, &PersistenceError{Op: "创建产品", Err: err}
	}
	return p, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*entity.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "产品", ID: id}
		}
		return nil, &PersistenceError{Op: "读取产品", Err: err}
	}
	return p, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, params repository.ProductListParams) ([]entity.Product, int64, error) {
	return s.repo.List(ctx, params)
}
