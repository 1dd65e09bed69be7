package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType 库存交易类型
const (
	TxTypeAdd           = "ADD"            // 入库
	TxTypeVariantAdd    = "VARIANT_ADD"    // 变体入库
	TxTypeConsume       = "CONSUME"        // 生产领料
	TxTypeVariantReduce = "VARIANT_REDUCE" // 变体领料
	TxTypeReturn        = "RETURN"         // 工单取消退料
	TxTypeVariantReturn = "VARIANT_RETURN" // 变体退料
)

// RawItem 原料（面料、辅料等），Quantity为汇总库存
type RawItem struct {
	ID        string          `json:"id" gorm:"primaryKey;size:36"`
	Code      string          `json:"code" gorm:"size:64;not null;uniqueIndex"` // SKU
	Name      string          `json:"name" gorm:"size:128;not null"`
	Unit      string          `json:"unit" gorm:"size:20;not null;default:pcs"`
	Quantity  float64         `json:"quantity" gorm:"type:decimal(12,4);not null;default:0"`
	UnitCost  decimal.Decimal `json:"unit_cost" gorm:"type:decimal(12,4);default:0"`
	Version   int64           `json:"version" gorm:"not null;default:1"` // 乐观锁
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Variants []RawItemVariant `json:"variants,omitempty" gorm:"foreignKey:RawItemID"`
}

func (RawItem) TableName() string {
	return "erp_raw_items"
}

// RawItemVariant 原料变体，库存与汇总库存同步扣减
type RawItemVariant struct {
	ID          string      `json:"id" gorm:"primaryKey;size:36"`
	RawItemID   string      `json:"raw_item_id" gorm:"size:36;not null;index"`
	Combination Combination `json:"combination" gorm:"type:jsonb"`
	Quantity    float64     `json:"quantity" gorm:"type:decimal(12,4);not null;default:0"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (RawItemVariant) TableName() string {
	return "erp_raw_item_variants"
}

// StockTransaction 库存流水（只追加）
type StockTransaction struct {
	ID                      string    `json:"id" gorm:"primaryKey;size:36"`
	RawItemID               string    `json:"raw_item_id" gorm:"size:36;not null;index"`
	RawItemCode             string    `json:"raw_item_code" gorm:"size:64"`
	RawItemName             string    `json:"raw_item_name" gorm:"size:128"`
	VariantID               string    `json:"variant_id" gorm:"size:36"`
	TransactionType         string    `json:"transaction_type" gorm:"size:20;not null"`
	Quantity                float64   `json:"quantity" gorm:"type:decimal(12,4);not null"` // 正=入，负=出
	PreviousQuantity        float64   `json:"previous_quantity" gorm:"type:decimal(12,4)"`
	NewQuantity             float64   `json:"new_quantity" gorm:"type:decimal(12,4)"`
	PreviousVariantQuantity *float64  `json:"previous_variant_quantity,omitempty" gorm:"type:decimal(12,4)"`
	NewVariantQuantity      *float64  `json:"new_variant_quantity,omitempty" gorm:"type:decimal(12,4)"`
	Reason                  string    `json:"reason" gorm:"type:text"`
	ReferenceType           string    `json:"reference_type" gorm:"size:20"` // WO, ADJUST
	ReferenceID             string    `json:"reference_id" gorm:"size:64;index"`
	ReferenceCode           string    `json:"reference_code" gorm:"size:64"`
	CreatedBy               string    `json:"created_by" gorm:"size:64;not null"`
	CreatedAt               time.Time `json:"created_at"`
}

func (StockTransaction) TableName() string {
	return "erp_stock_transactions"
}

// PinKind 原料变体指定方式
type PinKind int

const (
	PinNone         PinKind = iota // 不指定，使用汇总库存
	PinByID                        // 按变体ID
	PinByAttributes                // 按属性值组合
)

// RawMaterialPin BOM行对原料变体的指定
type RawMaterialPin struct {
	Kind        PinKind
	VariantID   string
	Combination Combination
}

// NewRawMaterialPin 变体ID优先，其次属性组合
func NewRawMaterialPin(variantID string, combination Combination) RawMaterialPin {
	switch {
	case variantID != "":
		return RawMaterialPin{Kind: PinByID, VariantID: variantID}
	case len(combination) > 0:
		return RawMaterialPin{Kind: PinByAttributes, Combination: combination}
	default:
		return RawMaterialPin{Kind: PinNone}
	}
}
