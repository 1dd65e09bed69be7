package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkOrderStatus 工单状态
const (
	WOStatusPending           = "pending"
	WOStatusPartialAllocation = "partial_allocation"
	WOStatusPlanned           = "planned"
	WOStatusScheduled         = "scheduled"
	WOStatusInProgress        = "in_progress"
	WOStatusCompleted         = "completed"
	WOStatusCancelled         = "cancelled"
)

// AllocationStatus 物料分配状态
const (
	AllocNotAllocated       = "not_allocated"
	AllocPartiallyAllocated = "partially_allocated"
	AllocFullyAllocated     = "fully_allocated"
	AllocIssued             = "issued"
)

// OperationStatus 工序状态
const (
	OpStatusPending    = "pending"
	OpStatusInProgress = "in_progress"
	OpStatusCompleted  = "completed"
)

// WorkOrder 生产工单
type WorkOrder struct {
	ID                string     `json:"id" gorm:"primaryKey;size:36"`
	WONumber          string     `json:"wo_number" gorm:"size:64;not null;uniqueIndex"`
	QuotationID       string     `json:"quotation_id" gorm:"size:36;index"`
	QuotationNumber   string     `json:"quotation_number" gorm:"size:50"`
	CustomerID        string     `json:"customer_id" gorm:"size:64"`
	CustomerName      string     `json:"customer_name" gorm:"size:200"`
	ProductID         string     `json:"product_id" gorm:"size:36;not null;index"`
	ProductCode       string     `json:"product_code" gorm:"size:64"`
	ProductName       string     `json:"product_name" gorm:"size:128"`
	VariantID         string     `json:"variant_id" gorm:"size:36"`
	VariantSKU        string     `json:"variant_sku" gorm:"size:64"`
	VariantAttributes Attributes `json:"variant_attributes" gorm:"type:jsonb"`
	Quantity          int        `json:"quantity" gorm:"not null"`
	OriginalQuantity  int        `json:"original_quantity" gorm:"not null"` // 创建时快照，不可变
	Status            string     `json:"status" gorm:"size:20;not null;default:pending;index"`
	Priority          int        `json:"priority" gorm:"default:0"`
	IsSplitOrder      bool       `json:"is_split_order"`
	ParentWorkOrderID string     `json:"parent_work_order_id" gorm:"size:36;index"`
	PlannedBy         string     `json:"planned_by" gorm:"size:64"`
	PlannedAt         *time.Time `json:"planned_at"`
	ActualStart       *time.Time `json:"actual_start"`
	ActualEnd         *time.Time `json:"actual_end"`
	CancelledBy       string     `json:"cancelled_by" gorm:"size:64"`
	CancelledAt       *time.Time `json:"cancelled_at"`
	CancelReason      string     `json:"cancel_reason" gorm:"type:text"`
	Notes             string     `json:"notes" gorm:"type:text"`
	CreatedBy         string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at" gorm:"index"`

	Operations []WorkOrderOperation `json:"operations,omitempty" gorm:"foreignKey:WorkOrderID"`
	Materials  []WorkOrderMaterial  `json:"materials,omitempty" gorm:"foreignKey:WorkOrderID"`
}

func (WorkOrder) TableName() string {
	return "erp_work_orders"
}

// HasIssuedMaterials 是否已有物料发出
func (wo *WorkOrder) HasIssuedMaterials() bool {
	for _, m := range wo.Materials {
		if m.QuantityIssued > 0 {
			return true
		}
	}
	return false
}

// WorkOrderOperation 工单工序
type WorkOrderOperation struct {
	ID               string     `json:"id" gorm:"primaryKey;size:36"`
	WorkOrderID      string     `json:"work_order_id" gorm:"size:36;not null;index"`
	Sequence         int        `json:"sequence" gorm:"not null;default:0"`
	OperationType    string     `json:"operation_type" gorm:"size:50;not null"`
	MachineType      string     `json:"machine_type" gorm:"size:50"`
	EstimatedSeconds int        `json:"estimated_seconds" gorm:"default:0"`
	PlannedSeconds   int        `json:"planned_seconds" gorm:"default:0"`
	MachineID        string     `json:"machine_id" gorm:"size:64"` // 主机台
	MachineName      string     `json:"machine_name" gorm:"size:128"`
	AssignedAt       *time.Time `json:"assigned_at"`
	Status           string     `json:"status" gorm:"size:20;not null;default:pending"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (WorkOrderOperation) TableName() string {
	return "erp_work_order_operations"
}

// WorkOrderMaterial 工单物料需求
// 约束: QuantityIssued <= QuantityAllocated <= QuantityRequired,
// QuantityRequired = OriginalRequired / WorkOrder.OriginalQuantity * WorkOrder.Quantity
type WorkOrderMaterial struct {
	ID                 string          `json:"id" gorm:"primaryKey;size:36"`
	WorkOrderID        string          `json:"work_order_id" gorm:"size:36;not null;index"`
	LineNo             int             `json:"line_no" gorm:"not null;default:0"`
	RawItemID          string          `json:"raw_item_id" gorm:"size:36;not null;index"`
	RawItemCode        string          `json:"raw_item_code" gorm:"size:64"`
	RawItemName        string          `json:"raw_item_name" gorm:"size:128"`
	QuantityPerUnit    float64         `json:"quantity_per_unit" gorm:"type:decimal(12,4);not null"`
	OriginalRequired   float64         `json:"original_required" gorm:"type:decimal(12,4);not null"`
	QuantityRequired   float64         `json:"quantity_required" gorm:"type:decimal(12,4);not null"`
	QuantityAllocated  float64         `json:"quantity_allocated" gorm:"type:decimal(12,4);default:0"`
	QuantityIssued     float64         `json:"quantity_issued" gorm:"type:decimal(12,4);default:0"`
	Unit               string          `json:"unit" gorm:"size:20;not null;default:pcs"`
	UnitCost           decimal.Decimal `json:"unit_cost" gorm:"type:decimal(12,4);default:0"`
	TotalCost          decimal.Decimal `json:"total_cost" gorm:"type:decimal(14,2);default:0"`
	AllocationStatus   string          `json:"allocation_status" gorm:"size:30;not null;default:not_allocated"`
	RawItemVariantID   string          `json:"raw_item_variant_id" gorm:"size:36"`
	RawItemCombination Combination     `json:"raw_item_combination" gorm:"type:jsonb"`
	IssuedAt           *time.Time      `json:"issued_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (WorkOrderMaterial) TableName() string {
	return "erp_work_order_materials"
}

// Pin 原料变体指定方式
func (m WorkOrderMaterial) Pin() RawMaterialPin {
	return NewRawMaterialPin(m.RawItemVariantID, m.RawItemCombination)
}
