package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PlanningResult 计划完成结果
type PlanningResult struct {
	WorkOrder     *entity.WorkOrder         `json:"work_order"`
	Transactions  []entity.StockTransaction `json:"transactions"`
	IssuedLineIDs []string                  `json:"issued_line_ids"`
}

// CompletePlanning 校验分配与机台指派后逐行发料，成功后工单进入 scheduled
// 已发料的行会被跳过，失败后重试不会重复扣减
func (s *ManufacturingService) CompletePlanning(ctx context.Context, id, userID string) (*PlanningResult, error) {
	start := time.Now()
	defer s.metrics.observePlanning(start)

	wo, err := s.getWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	switch wo.Status {
	case entity.WOStatusPending, entity.WOStatusPartialAllocation, entity.WOStatusPlanned:
		if err := validatePlanning(wo); err != nil {
			return nil, err
		}
	}
	if err := checkTransition(wo.Status, entity.WOStatusScheduled); err != nil {
		return nil, err
	}

	result := &PlanningResult{WorkOrder: wo, Transactions: []entity.StockTransaction{}, IssuedLineIDs: []string{}}
	for i := range wo.Materials {
		m := &wo.Materials[i]
		if m.AllocationStatus == entity.AllocIssued {
			result.IssuedLineIDs = append(result.IssuedLineIDs, m.ID)
			continue
		}
		txn, err := s.issueLine(ctx, wo, m, userID)
		if err != nil {
			s.logger.Error("发料中断，已发料行需人工核对",
				zap.String("wo_number", wo.WONumber),
				zap.String("failed_line", m.ID),
				zap.Strings("issued_lines", result.IssuedLineIDs),
				zap.Error(err))
			return result, withIssuedLines(err, result.IssuedLineIDs)
		}
		result.IssuedLineIDs = append(result.IssuedLineIDs, m.ID)
		if txn != nil {
			s.logger.Info("物料已发出",
				zap.String("wo_number", wo.WONumber),
				zap.String("raw_item", txn.RawItemCode),
				zap.Float64("quantity", -txn.Quantity),
				zap.Float64("previous_quantity", txn.PreviousQuantity),
				zap.Float64("new_quantity", txn.NewQuantity))
			result.Transactions = append(result.Transactions, *txn)
		}
	}

	now := time.Now()
	wo.Status = entity.WOStatusScheduled
	wo.PlannedBy = userID
	wo.PlannedAt = &now
	if err := s.woRepo.UpdateHeader(ctx, wo); err != nil {
		return result, &PersistenceError{Op: "更新工单状态", Err: err, IssuedLineIDs: result.IssuedLineIDs}
	}
	s.logger.Info("工单计划完成",
		zap.String("wo_number", wo.WONumber),
		zap.Int("transactions", len(result.Transactions)),
		zap.String("user_id", userID))
	return result, nil
}

// validatePlanning 所有物料行已分配且所有工序已指派机台
func validatePlanning(wo *entity.WorkOrder) error {
	incomplete := &IncompletePlanningError{}
	for _, m := range wo.Materials {
		if m.AllocationStatus == entity.AllocNotAllocated {
			incomplete.Lines = append(incomplete.Lines, IncompleteLine{
				MaterialID: m.ID, RawItemCode: m.RawItemCode, AllocationStatus: m.AllocationStatus,
			})
		}
	}
	for _, op := range wo.Operations {
		if op.MachineID == "" {
			incomplete.Operations = append(incomplete.Operations, IncompleteOperation{
				OperationID: op.ID, OperationType: op.OperationType,
			})
		}
	}
	if len(incomplete.Lines) > 0 || len(incomplete.Operations) > 0 {
		return incomplete
	}
	return nil
}

// issueLine 扣减一行物料的库存并在同一事务中回写物料行
func (s *ManufacturingService) issueLine(ctx context.Context, wo *entity.WorkOrder, m *entity.WorkOrderMaterial, userID string) (*entity.StockTransaction, error) {
	now := time.Now()
	updated := *m
	updated.QuantityIssued = m.QuantityAllocated
	updated.AllocationStatus = entity.AllocIssued
	updated.IssuedAt = &now

	if m.QuantityAllocated <= 0 {
		if err := s.markIssued(ctx, s.woRepo, &updated); err != nil {
			return nil, err
		}
		*m = updated
		return nil, nil
	}

	txn, err := s.inventory.apply(ctx, stockMovement{
		RawItemID:        m.RawItemID,
		Pin:              m.Pin(),
		Delta:            -m.QuantityAllocated,
		AggregateType:    entity.TxTypeConsume,
		VariantType:      entity.TxTypeVariantReduce,
		Reason:           fmt.Sprintf("工单 %s 生产领料 %s", wo.WONumber, m.RawItemCode),
		RefType:          "WO",
		RefID:            wo.ID,
		RefCode:          wo.WONumber,
		Actor:            userID,
		RequireAvailable: true,
		OnApply: func(tx *gorm.DB, _ *entity.StockTransaction) error {
			return s.markIssued(ctx, s.woRepo.WithTx(tx), &updated)
		},
	})
	if err != nil {
		return nil, err
	}
	*m = updated
	return txn, nil
}

// markIssued 物料行已被其他请求发料时返回并发错误，外层事务随之回滚
func (s *ManufacturingService) markIssued(ctx context.Context, repo *repository.WorkOrderRepository, m *entity.WorkOrderMaterial) error {
	err := repo.MarkMaterialIssued(ctx, m)
	if errors.Is(err, repository.ErrStaleMaterial) {
		s.metrics.StockConflicts.Inc()
		return &ConcurrencyError{RawItemID: m.RawItemID, Message: "物料行 " + m.ID + " 已被其他操作发料"}
	}
	if err != nil {
		return &PersistenceError{Op: "更新物料行", Err: err}
	}
	return nil
}

// withIssuedLines 在错误中附带已发料行
func withIssuedLines(err error, issued []string) error {
	lines := append([]string(nil), issued...)
	var ce *ConcurrencyError
	if errors.As(err, &ce) {
		ce.IssuedLineIDs = lines
		return ce
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		pe.IssuedLineIDs = lines
		return pe
	}
	return err
}
