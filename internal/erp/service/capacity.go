package service

import (
	"context"
	"math"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
)

// MaterialCapacityStatus 单物料满足情况
const (
	CapacitySufficient   = "sufficient"
	CapacityPartial      = "partial"
	CapacityInsufficient = "insufficient"
)

const qtyEpsilon = 1e-9

// MaterialCapacity 单物料可生产数量明细
type MaterialCapacity struct {
	MaterialID       string  `json:"material_id"`
	RawItemID        string  `json:"raw_item_id"`
	RawItemCode      string  `json:"raw_item_code"`
	RawItemName      string  `json:"raw_item_name"`
	RawItemVariantID string  `json:"raw_item_variant_id,omitempty"` // 解析到的变体
	QuantityRequired float64 `json:"quantity_required"`
	RequiredPerUnit  float64 `json:"required_per_unit"`
	PooledPerUnit    float64 `json:"pooled_required_per_unit"` // 同一库存上所有行的单件用量之和
	AvailableStock   float64 `json:"available_stock"`
	Unconstrained    bool    `json:"unconstrained"`
	MaxUnits         int     `json:"max_units"`
	Status           string  `json:"status"`
}

// CapacityResult 工单可生产数量
type CapacityResult struct {
	WorkOrderID   string             `json:"work_order_id"`
	Quantity      int                `json:"quantity"`
	MaxProducible int                `json:"max_producible"`
	Limiting      *MaterialCapacity  `json:"limiting,omitempty"`
	Materials     []MaterialCapacity `json:"materials"`
}

// ComputeCapacity 只读计算，不修改库存和工单
// 多行扣减同一原料（或同一原料变体）时按合计单件用量计算
func ComputeCapacity(wo *entity.WorkOrder, stock map[string]*entity.RawItem) *CapacityResult {
	result := &CapacityResult{
		WorkOrderID:   wo.ID,
		Quantity:      wo.Quantity,
		MaxProducible: wo.Quantity,
		Materials:     make([]MaterialCapacity, 0, len(wo.Materials)),
	}
	limitIdx := -1

	pooled := make(map[string]float64, len(wo.Materials))
	keys := make([]string, len(wo.Materials))
	for i, m := range wo.Materials {
		mc := MaterialCapacity{
			MaterialID:       m.ID,
			RawItemID:        m.RawItemID,
			RawItemCode:      m.RawItemCode,
			RawItemName:      m.RawItemName,
			QuantityRequired: m.QuantityRequired,
		}
		if wo.Quantity > 0 {
			mc.RequiredPerUnit = m.QuantityRequired / float64(wo.Quantity)
		}
		available, variant := availableStock(stock[m.RawItemID], m.Pin())
		if variant != nil {
			mc.RawItemVariantID = variant.ID
		}
		mc.AvailableStock = available
		keys[i] = stockKey(m.RawItemID, variant)
		pooled[keys[i]] += mc.RequiredPerUnit
		result.Materials = append(result.Materials, mc)
	}

	for i := range result.Materials {
		mc := &result.Materials[i]
		mc.PooledPerUnit = pooled[keys[i]]
		if mc.RequiredPerUnit > 0 {
			mc.MaxUnits = floorUnits(mc.AvailableStock / mc.PooledPerUnit)
		} else {
			mc.Unconstrained = true
			mc.MaxUnits = wo.Quantity
		}

		switch {
		case mc.Unconstrained || mc.MaxUnits >= wo.Quantity:
			mc.Status = CapacitySufficient
		case mc.MaxUnits > 0:
			mc.Status = CapacityPartial
		default:
			mc.Status = CapacityInsufficient
		}

		if !mc.Unconstrained && mc.MaxUnits < result.MaxProducible {
			result.MaxProducible = mc.MaxUnits
			limitIdx = i
		}
	}

	if result.MaxProducible < 0 {
		result.MaxProducible = 0
	}
	if limitIdx >= 0 {
		limiting := result.Materials[limitIdx]
		result.Limiting = &limiting
	}
	return result
}

// stockKey 标识一份库存：原料汇总或某个原料变体
func stockKey(rawItemID string, variant *entity.RawItemVariant) string {
	if variant == nil {
		return rawItemID
	}
	return rawItemID + "/" + variant.ID
}

func floorUnits(x float64) int {
	if x <= 0 || math.IsNaN(x) {
		return 0
	}
	if x >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(x + qtyEpsilon))
}

// Capacity 查询工单当前可生产数量
func (s *ManufacturingService) Capacity(ctx context.Context, id string) (*CapacityResult, error) {
	wo, err := s.getWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	stock, err := s.loadStock(ctx, wo)
	if err != nil {
		return nil, err
	}
	return ComputeCapacity(wo, stock), nil
}

// loadStock 读取工单涉及的全部原料
func (s *ManufacturingService) loadStock(ctx context.Context, wo *entity.WorkOrder) (map[string]*entity.RawItem, error) {
	ids := make([]string, 0, len(wo.Materials))
	seen := make(map[string]bool, len(wo.Materials))
	for _, m := range wo.Materials {
		if !seen[m.RawItemID] {
			seen[m.RawItemID] = true
			ids = append(ids, m.RawItemID)
		}
	}
	stock, err := s.rawRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, &PersistenceError{Op: "读取原料库存", Err: err}
	}
	for _, id := range ids {
		if _, ok := stock[id]; !ok {
			return nil, &NotFoundError{Resource: "原料", ID: id}
		}
	}
	return stock, nil
}
