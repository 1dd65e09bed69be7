package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"go.uber.org/zap"
)

// ManufacturingService 工单生成、分配、计划与生产状态
type ManufacturingService struct {
	woRepo      *repository.WorkOrderRepository
	productRepo *repository.ProductRepository
	rawRepo     *repository.RawItemRepository
	inventory   *InventoryService
	numberer    *Numberer
	metrics     *Metrics
	logger      *zap.Logger
	prefix      string
}

func NewManufacturingService(repos *repository.Repositories, inventory *InventoryService, numberer *Numberer, metrics *Metrics, logger *zap.Logger, prefix string) *ManufacturingService {
	return &ManufacturingService{
		woRepo:      repos.WorkOrder,
		productRepo: repos.Product,
		rawRepo:     repos.RawItem,
		inventory:   inventory,
		numberer:    numberer,
		metrics:     metrics,
		logger:      logger,
		prefix:      prefix,
	}
}

func (s *ManufacturingService) getWorkOrder(ctx context.Context, id string) (*entity.WorkOrder, error) {
	wo, err := s.woRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "工单", ID: id}
		}
		return nil, &PersistenceError{Op: "读取工单", Err: err}
	}
	return wo, nil
}

func (s *ManufacturingService) GetByID(ctx context.Context, id string) (*entity.WorkOrder, error) {
	return s.getWorkOrder(ctx, id)
}

func (s *ManufacturingService) List(ctx context.Context, params repository.WOListParams) ([]entity.WorkOrder, int64, error) {
	return s.woRepo.List(ctx, params)
}

type AssignMachineRequest struct {
	MachineID      string `json:"machine_id" binding:"required"`
	MachineName    string `json:"machine_name"`
	PlannedSeconds int    `json:"planned_seconds"`
}

// AssignMachine 工序指派主机台，开始生产前可修改
func (s *ManufacturingService) AssignMachine(ctx context.Context, id, operationID string, req AssignMachineRequest) (*entity.WorkOrderOperation, error) {
	if req.MachineID == "" {
		return nil, validationf("machine_id", "机台不能为空")
	}
	if req.PlannedSeconds < 0 {
		return nil, validationf("planned_seconds", "计划工时不能为负数")
	}
	wo, op, err := s.editableOperation(ctx, id, operationID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	op.MachineID = req.MachineID
	op.MachineName = req.MachineName
	op.AssignedAt = &now
	op.PlannedSeconds = req.PlannedSeconds
	if op.PlannedSeconds == 0 {
		op.PlannedSeconds = op.EstimatedSeconds
	}
	if err := s.woRepo.UpdateOperation(ctx, op); err != nil {
		return nil, &PersistenceError{Op: "指派机台", Err: err}
	}
	s.logger.Info("工序指派机台",
		zap.String("wo_number", wo.WONumber),
		zap.String("operation", op.OperationType),
		zap.String("machine_id", op.MachineID))
	return op, nil
}

// UnassignMachine 取消工序的机台指派
func (s *ManufacturingService) UnassignMachine(ctx context.Context, id, operationID string) (*entity.WorkOrderOperation, error) {
	_, op, err := s.editableOperation(ctx, id, operationID)
	if err != nil {
		return nil, err
	}
	op.MachineID = ""
	op.MachineName = ""
	op.AssignedAt = nil
	op.PlannedSeconds = 0
	if err := s.woRepo.UpdateOperation(ctx, op); err != nil {
		return nil, &PersistenceError{Op: "取消机台指派", Err: err}
	}
	return op, nil
}

func (s *ManufacturingService) editableOperation(ctx context.Context, id, operationID string) (*entity.WorkOrder, *entity.WorkOrderOperation, error) {
	wo, err := s.getWorkOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	switch wo.Status {
	case entity.WOStatusPending, entity.WOStatusPartialAllocation, entity.WOStatusPlanned, entity.WOStatusScheduled:
	default:
		return nil, nil, validationf("status", "工单状态 %s 不允许修改机台指派", wo.Status)
	}
	for i := range wo.Operations {
		if wo.Operations[i].ID == operationID {
			return wo, &wo.Operations[i], nil
		}
	}
	return nil, nil, &NotFoundError{Resource: "工序", ID: operationID}
}
