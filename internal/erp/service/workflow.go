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

// 工单状态流转，不允许跳过状态
var woTransitions = map[string][]string{
	entity.WOStatusPending:           {entity.WOStatusPartialAllocation, entity.WOStatusPlanned, entity.WOStatusCancelled},
	entity.WOStatusPartialAllocation: {entity.WOStatusPartialAllocation, entity.WOStatusPlanned, entity.WOStatusScheduled, entity.WOStatusCancelled},
	entity.WOStatusPlanned:           {entity.WOStatusPartialAllocation, entity.WOStatusPlanned, entity.WOStatusScheduled, entity.WOStatusCancelled},
	entity.WOStatusScheduled:         {entity.WOStatusInProgress, entity.WOStatusCancelled},
	entity.WOStatusInProgress:        {entity.WOStatusCompleted},
}

// CanTransition 判断状态是否可以流转
func CanTransition(from, to string) bool {
	for _, s := range woTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to string) error {
	if !CanTransition(from, to) {
		return validationf("status", "工单状态 %s 不能变更为 %s", from, to)
	}
	return nil
}

// StartProduction 开始生产，重新校验物料已发出且工序已指派机台
func (s *ManufacturingService) StartProduction(ctx context.Context, id, userID string) (*entity.WorkOrder, error) {
	wo, err := s.getWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(wo.Status, entity.WOStatusInProgress); err != nil {
		return nil, err
	}
	incomplete := &IncompletePlanningError{}
	for _, m := range wo.Materials {
		if m.AllocationStatus != entity.AllocIssued {
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
		return nil, incomplete
	}

	now := time.Now()
	wo.Status = entity.WOStatusInProgress
	wo.ActualStart = &now
	if len(wo.Operations) > 0 {
		wo.Operations[0].Status = entity.OpStatusInProgress
		wo.Operations[0].StartedAt = &now
	}
	if err := s.woRepo.Update(ctx, wo); err != nil {
		return nil, &PersistenceError{Op: "开始生产", Err: err}
	}
	s.logger.Info("工单开始生产", zap.String("wo_number", wo.WONumber), zap.String("user_id", userID))
	return wo, nil
}

// CompleteProduction 完工，所有工序标记完成
func (s *ManufacturingService) CompleteProduction(ctx context.Context, id, userID string) (*entity.WorkOrder, error) {
	wo, err := s.getWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(wo.Status, entity.WOStatusCompleted); err != nil {
		return nil, err
	}
	now := time.Now()
	wo.Status = entity.WOStatusCompleted
	wo.ActualEnd = &now
	for i := range wo.Operations {
		op := &wo.Operations[i]
		if op.StartedAt == nil {
			op.StartedAt = &now
		}
		op.Status = entity.OpStatusCompleted
		op.CompletedAt = &now
	}
	if err := s.woRepo.Update(ctx, wo); err != nil {
		return nil, &PersistenceError{Op: "完工", Err: err}
	}
	s.logger.Info("工单完工", zap.String("wo_number", wo.WONumber), zap.String("user_id", userID))
	return wo, nil
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// CancelResult 取消结果，Transactions 为退料流水
type CancelResult struct {
	WorkOrder    *entity.WorkOrder         `json:"work_order"`
	Transactions []entity.StockTransaction `json:"transactions"`
}

// Cancel 取消工单，已发料的行生成退料流水并归还库存
func (s *ManufacturingService) Cancel(ctx context.Context, id string, req CancelRequest, userID string) (*CancelResult, error) {
	wo, err := s.getWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(wo.Status, entity.WOStatusCancelled); err != nil {
		return nil, err
	}

	result := &CancelResult{WorkOrder: wo, Transactions: []entity.StockTransaction{}}
	var returned []string
	for i := range wo.Materials {
		m := &wo.Materials[i]
		if m.QuantityIssued <= 0 {
			continue
		}
		updated := *m
		updated.QuantityIssued = 0
		updated.QuantityAllocated = 0
		updated.AllocationStatus = entity.AllocNotAllocated
		updated.IssuedAt = nil

		txn, err := s.inventory.apply(ctx, stockMovement{
			RawItemID:     m.RawItemID,
			Pin:           m.Pin(),
			Delta:         m.QuantityIssued,
			AggregateType: entity.TxTypeReturn,
			VariantType:   entity.TxTypeVariantReturn,
			Reason:        fmt.Sprintf("工单 %s 取消退料 %s", wo.WONumber, m.RawItemCode),
			RefType:       "WO",
			RefID:         wo.ID,
			RefCode:       wo.WONumber,
			Actor:         userID,
			OnApply: func(tx *gorm.DB, _ *entity.StockTransaction) error {
				err := s.woRepo.WithTx(tx).MarkMaterialReturned(ctx, &updated)
				if errors.Is(err, repository.ErrStaleMaterial) {
					return &ConcurrencyError{RawItemID: m.RawItemID, Message: "物料行 " + m.ID + " 已被其他操作退料"}
				}
				if err != nil {
					return &PersistenceError{Op: "更新物料行", Err: err}
				}
				return nil
			},
		})
		if err != nil {
			s.logger.Error("取消退料中断",
				zap.String("wo_number", wo.WONumber),
				zap.Strings("returned_lines", returned),
				zap.Error(err))
			return result, err
		}
		*m = updated
		returned = append(returned, m.ID)
		result.Transactions = append(result.Transactions, *txn)
	}

	now := time.Now()
	wo.Status = entity.WOStatusCancelled
	wo.CancelledBy = userID
	wo.CancelledAt = &now
	wo.CancelReason = req.Reason
	for i := range wo.Materials {
		m := &wo.Materials[i]
		m.QuantityAllocated = 0
		m.AllocationStatus = entity.AllocNotAllocated
	}
	if err := s.woRepo.Update(ctx, wo); err != nil {
		return result, &PersistenceError{Op: "取消工单", Err: err}
	}
	s.logger.Info("工单已取消",
		zap.String("wo_number", wo.WONumber),
		zap.Int("returned_lines", len(returned)),
		zap.String("user_id", userID))
	return result, nil
}
