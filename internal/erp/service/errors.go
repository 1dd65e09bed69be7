package service

import (
	"fmt"
	"strings"
)

// ValidationError 参数或状态不合法
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError 产品、变体、原料或工单不存在
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s不存在: %s", e.Resource, e.ID)
}

// CapacityError 申请数量超过当前库存可生产数量
type CapacityError struct {
	Requested        int
	MaxProducible    int
	BlockingRawItem  string
	BlockingMaterial string
	Shortfall        float64 // 按申请数量计算的缺口
}

func (e *CapacityError) Error() string {
	msg := fmt.Sprintf("申请数量 %d 超过可生产数量 %d", e.Requested, e.MaxProducible)
	if e.BlockingMaterial != "" {
		msg += fmt.Sprintf("，受限物料 %s 缺 %.4f", e.BlockingMaterial, e.Shortfall)
	}
	return msg
}

// IncompleteLine 未分配的物料行
type IncompleteLine struct {
	MaterialID       string `json:"material_id"`
	RawItemCode      string `json:"raw_item_code"`
	AllocationStatus string `json:"allocation_status"`
}

// IncompleteOperation 未指派机台的工序
type IncompleteOperation struct {
	OperationID   string `json:"operation_id"`
	OperationType string `json:"operation_type"`
}

// IncompletePlanningError 物料未分配或工序未指派机台
type IncompletePlanningError struct {
	Lines      []IncompleteLine      `json:"lines,omitempty"`
	Operations []IncompleteOperation `json:"operations,omitempty"`
}

func (e *IncompletePlanningError) Error() string {
	var parts []string
	if len(e.Lines) > 0 {
		codes := make([]string, 0, len(e.Lines))
		for _, l := range e.Lines {
			codes = append(codes, fmt.Sprintf("%s(%s)", l.RawItemCode, l.AllocationStatus))
		}
		parts = append(parts, "物料未完成分配: "+strings.Join(codes, ", "))
	}
	if len(e.Operations) > 0 {
		ops := make([]string, 0, len(e.Operations))
		for _, o := range e.Operations {
			ops = append(ops, o.OperationType)
		}
		parts = append(parts, "工序未指派机台: "+strings.Join(ops, ", "))
	}
	return "计划不完整: " + strings.Join(parts, "; ")
}

// ConcurrencyError 库存写入冲突或库存已变化，需重新获取后重试
type ConcurrencyError struct {
	RawItemID     string
	Message       string
	IssuedLineIDs []string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("原料 %s 库存并发冲突: %s，请刷新后重试", e.RawItemID, e.Message)
}

func (e *ConcurrencyError) Retryable() bool { return true }

// PersistenceError 存储不可用或写入失败
type PersistenceError struct {
	Op            string
	Err           error
	IssuedLineIDs []string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s失败: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Retryable() bool { return true }
