package entity

import (
	"time"
)

// QuotationStatus 报价单状态
const (
	QuotationStatusPending  = "PENDING"
	QuotationStatusApproved = "APPROVED"
)

// Quotation 已审批报价单（生产侧只保留生成工单所需字段）
type Quotation struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	QuotationNumber string     `json:"quotation_number" gorm:"size:50;not null;uniqueIndex"`
	CustomerID      string     `json:"customer_id" gorm:"size:64;index"`
	CustomerName    string     `json:"customer_name" gorm:"size:200"`
	Priority        int        `json:"priority" gorm:"default:0"` // 0=普通, 1=紧急, 2=特急
	Status          string     `json:"status" gorm:"size:20;not null;default:PENDING"`
	ApprovedBy      string     `json:"approved_by" gorm:"size:64"`
	ApprovedAt      *time.Time `json:"approved_at"`
	Notes           string     `json:"notes" gorm:"type:text"`
	CreatedBy       string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Lines []QuotationLine `json:"lines,omitempty" gorm:"foreignKey:QuotationID"`
}

func (Quotation) TableName() string {
	return "erp_quotations"
}

// QuotationLine 报价单明细
type QuotationLine struct {
	ID                string     `json:"id" gorm:"primaryKey;size:36"`
	QuotationID       string     `json:"quotation_id" gorm:"size:36;not null;index"`
	LineNo            int        `json:"line_no" gorm:"not null"`
	ProductID         string     `json:"product_id" gorm:"size:36;not null"`
	VariantID         string     `json:"variant_id" gorm:"size:64"` // 变体ID或SKU
	VariantAttributes Attributes `json:"variant_attributes" gorm:"type:jsonb"`
	Quantity          int        `json:"quantity" gorm:"not null"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (QuotationLine) TableName() string {
	return "erp_quotation_lines"
}
