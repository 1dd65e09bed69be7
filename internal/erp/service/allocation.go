package service

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AllocateRequest 计划员确认的生产数量
type AllocateRequest struct {
	ApprovedQuantity int  `json:"approved_quantity" binding:"required"`
	SplitRemaining   bool `json:"split_remaining"`
}

// AllocationResult 分配结果，NewWorkOrder 为拆分出的子工单
type AllocationResult struct {
	WorkOrder    *entity.WorkOrder `json:"work_order"`
	NewWorkOrder *entity.WorkOrder `json:"new_work_order"`
	Capacity     *CapacityResult   `json:"capacity"`
}

// Allocate 按确认数量重算物料需求并预留库存，可选把剩余数量拆分为子工单
func (s *ManufacturingService) Allocate(ctx context.Context, id string, req AllocateRequest, userID string) (*AllocationResult, error) {
	wo, err := s.getWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	switch wo.Status {
	case entity.WOStatusPending, entity.WOStatusPartialAllocation, entity.WOStatusPlanned:
	default:
		s.metrics.Allocations.WithLabelValues("rejected").Inc()
		return nil, validationf("status", "工单状态 %s 不允许分配", wo.Status)
	}
	if wo.HasIssuedMaterials() {
		s.metrics.Allocations.WithLabelValues("rejected").Inc()
		return nil, validationf("status", "工单已有物料发出，不能重新分配")
	}
	if req.ApprovedQuantity <= 0 || req.ApprovedQuantity > wo.Quantity {
		s.metrics.Allocations.WithLabelValues("rejected").Inc()
		return nil, validationf("approved_quantity", "确认数量必须在 1 到 %d 之间", wo.Quantity)
	}
	if wo.OriginalQuantity <= 0 {
		return nil, validationf("original_quantity", "工单原始数量无效")
	}

	stock, err := s.loadStock(ctx, wo)
	if err != nil {
		return nil, err
	}
	capacity := ComputeCapacity(wo, stock)
	if req.ApprovedQuantity > capacity.MaxProducible {
		s.metrics.Allocations.WithLabelValues("capacity").Inc()
		capErr := &CapacityError{Requested: req.ApprovedQuantity, MaxProducible: capacity.MaxProducible}
		if l := capacity.Limiting; l != nil {
			capErr.BlockingRawItem = l.RawItemID
			capErr.BlockingMaterial = l.RawItemCode
			capErr.Shortfall = round4(l.PooledPerUnit*float64(req.ApprovedQuantity) - l.AvailableStock)
		}
		return nil, capErr
	}

	remaining := wo.Quantity - req.ApprovedQuantity
	var child *entity.WorkOrder
	if req.SplitRemaining && remaining > 0 {
		n, err := s.woRepo.CountChildren(ctx, wo.ID)
		if err != nil {
			return nil, &PersistenceError{Op: "查询子工单", Err: err}
		}
		child = buildSplitChild(wo, remaining, splitNumber(wo.WONumber, n+1), userID)
	}

	rescale(wo, req.ApprovedQuantity)
	allocate(wo, stock)
	if req.ApprovedQuantity < wo.OriginalQuantity {
		wo.Status = entity.WOStatusPartialAllocation
	} else {
		wo.Status = entity.WOStatusPlanned
	}

	err = s.woRepo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.woRepo.WithTx(tx)
		if child != nil {
			if err := repo.Create(ctx, child); err != nil {
				return err
			}
		}
		return repo.Update(ctx, wo)
	})
	if err != nil {
		return nil, &PersistenceError{Op: "保存分配结果", Err: err}
	}

	s.metrics.Allocations.WithLabelValues("success").Inc()
	fields := []zap.Field{
		zap.String("work_order", describeWorkOrder(wo)),
		zap.String("status", wo.Status),
		zap.String("user_id", userID),
	}
	if child != nil {
		s.metrics.Splits.Inc()
		s.metrics.WorkOrdersCreated.WithLabelValues("split").Inc()
		fields = append(fields, zap.String("split", describeWorkOrder(child)))
	}
	s.logger.Info("工单分配完成", fields...)

	return &AllocationResult{WorkOrder: wo, NewWorkOrder: child, Capacity: capacity}, nil
}

// rescale 从原始数量基线重算每行需求，不在已缩放的值上累计
func rescale(wo *entity.WorkOrder, quantity int) {
	wo.Quantity = quantity
	for i := range wo.Materials {
		m := &wo.Materials[i]
		m.QuantityRequired = baselineRequired(m.OriginalRequired, wo.OriginalQuantity, quantity)
		m.TotalCost = lineCost(m.UnitCost, m.QuantityRequired)
	}
}

func baselineRequired(originalRequired float64, originalQuantity, quantity int) float64 {
	if originalQuantity <= 0 {
		return 0
	}
	return round4(originalRequired / float64(originalQuantity) * float64(quantity))
}

// allocate 预留 min(需求, 未被前面行预留的库存)，只计算不扣减
func allocate(wo *entity.WorkOrder, stock map[string]*entity.RawItem) {
	unreserved := make(map[string]float64, len(wo.Materials))
	for i := range wo.Materials {
		m := &wo.Materials[i]
		total, variant := availableStock(stock[m.RawItemID], m.Pin())
		key := stockKey(m.RawItemID, variant)
		available, seen := unreserved[key]
		if !seen {
			available = total
		}
		allocated := m.QuantityRequired
		if available < allocated {
			allocated = round4(available)
		}
		if allocated < 0 {
			allocated = 0
		}
		unreserved[key] = round4(available - allocated)
		m.QuantityAllocated = allocated
		m.QuantityIssued = 0
		switch {
		case allocated+qtyEpsilon >= m.QuantityRequired:
			m.QuantityAllocated = m.QuantityRequired
			m.AllocationStatus = entity.AllocFullyAllocated
		case allocated > 0:
			m.AllocationStatus = entity.AllocPartiallyAllocated
		default:
			m.AllocationStatus = entity.AllocNotAllocated
		}
	}
}

// buildSplitChild 剩余数量生成子工单，物料按父单基线缩放
func buildSplitChild(parent *entity.WorkOrder, quantity int, number, userID string) *entity.WorkOrder {
	child := &entity.WorkOrder{
		ID:                uuid.New().String(),
		WONumber:          number,
		QuotationID:       parent.QuotationID,
		QuotationNumber:   parent.QuotationNumber,
		CustomerID:        parent.CustomerID,
		CustomerName:      parent.CustomerName,
		ProductID:         parent.ProductID,
		ProductCode:       parent.ProductCode,
		ProductName:       parent.ProductName,
		VariantID:         parent.VariantID,
		VariantSKU:        parent.VariantSKU,
		VariantAttributes: parent.VariantAttributes,
		Quantity:          quantity,
		OriginalQuantity:  quantity,
		Status:            entity.WOStatusPending,
		Priority:          parent.Priority,
		IsSplitOrder:      true,
		ParentWorkOrderID: parent.ID,
		CreatedBy:         userID,
	}
	for _, op := range parent.Operations {
		child.Operations = append(child.Operations, entity.WorkOrderOperation{
			ID:               uuid.New().String(),
			WorkOrderID:      child.ID,
			Sequence:         op.Sequence,
			OperationType:    op.OperationType,
			MachineType:      op.MachineType,
			EstimatedSeconds: op.EstimatedSeconds,
			Status:           entity.OpStatusPending,
		})
	}
	for _, m := range parent.Materials {
		required := baselineRequired(m.OriginalRequired, parent.OriginalQuantity, quantity)
		child.Materials = append(child.Materials, entity.WorkOrderMaterial{
			ID:                 uuid.New().String(),
			WorkOrderID:        child.ID,
			LineNo:             m.LineNo,
			RawItemID:          m.RawItemID,
			RawItemCode:        m.RawItemCode,
			RawItemName:        m.RawItemName,
			QuantityPerUnit:    m.QuantityPerUnit,
			OriginalRequired:   required,
			QuantityRequired:   required,
			Unit:               m.Unit,
			UnitCost:           m.UnitCost,
			TotalCost:          lineCost(m.UnitCost, required),
			AllocationStatus:   entity.AllocNotAllocated,
			RawItemVariantID:   m.RawItemVariantID,
			RawItemCombination: m.RawItemCombination,
		})
	}
	return child
}

// ListSplitChildren 查询由该工单拆分出的子工单
func (s *ManufacturingService) ListSplitChildren(ctx context.Context, id string) ([]entity.WorkOrder, error) {
	if _, err := s.getWorkOrder(ctx, id); err != nil {
		return nil, err
	}
	children, err := s.woRepo.ListChildren(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "查询子工单", Err: err}
	}
	return children, nil
}
