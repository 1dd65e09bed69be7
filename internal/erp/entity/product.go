package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 成衣产品（目录只读视图）
type Product struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Code      string    `json:"code" gorm:"size:64;not null;uniqueIndex"` // 款号
	Name      string    `json:"name" gorm:"size:128;not null"`
	CreatedBy string    `json:"created_by" gorm:"size:64"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Variants   []ProductVariant   `json:"variants,omitempty" gorm:"foreignKey:ProductID"`
	Materials  []ProductMaterial  `json:"materials,omitempty" gorm:"foreignKey:ProductID"`
	Operations []ProductOperation `json:"operations,omitempty" gorm:"foreignKey:ProductID"`
}

func (Product) TableName() string {
	return "erp_products"
}

// MaterialsFor 返回某个变体的BOM行：优先变体专属行，没有则使用产品通用行
func (p *Product) MaterialsFor(variantID string) []ProductMaterial {
	var own, shared []ProductMaterial
	for _, m := range p.Materials {
		if m.VariantID == "" {
			shared = append(shared, m)
		} else if m.VariantID == variantID {
			own = append(own, m)
		}
	}
	if len(own) > 0 {
		return own
	}
	return shared
}

// ProductVariant 产品变体（颜色/尺码等）
type ProductVariant struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	ProductID  string     `json:"product_id" gorm:"size:36;not null;index"`
	SKU        string     `json:"sku" gorm:"size:64;index"`
	Attributes Attributes `json:"attributes" gorm:"type:jsonb"`
	StockQty   float64    `json:"stock_qty" gorm:"type:decimal(12,4);default:0"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (ProductVariant) TableName() string {
	return "erp_product_variants"
}

// ProductMaterial BOM原料行（单件用量）
type ProductMaterial struct {
	ID                 string          `json:"id" gorm:"primaryKey;size:36"`
	ProductID          string          `json:"product_id" gorm:"size:36;not null;index"`
	VariantID          string          `json:"variant_id" gorm:"size:36;index"` // 空表示所有变体通用
	Sequence           int             `json:"sequence" gorm:"not null;default:0"`
	RawItemID          string          `json:"raw_item_id" gorm:"size:36;not null"`
	RawItemCode        string          `json:"raw_item_code" gorm:"size:64"`
	RawItemName        string          `json:"raw_item_name" gorm:"size:128"`
	QuantityPerUnit    float64         `json:"quantity_per_unit" gorm:"type:decimal(12,4);not null"`
	Unit               string          `json:"unit" gorm:"size:20;not null;default:pcs"`
	UnitCost           decimal.Decimal `json:"unit_cost" gorm:"type:decimal(12,4);default:0"`
	RawItemVariantID   string          `json:"raw_item_variant_id" gorm:"size:36"`
	RawItemCombination Combination     `json:"raw_item_combination" gorm:"type:jsonb"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (ProductMaterial) TableName() string {
	return "erp_product_materials"
}

// Pin 原料变体指定方式
func (m ProductMaterial) Pin() RawMaterialPin {
	return NewRawMaterialPin(m.RawItemVariantID, m.RawItemCombination)
}

// ProductOperation 工序模板
type ProductOperation struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	ProductID        string    `json:"product_id" gorm:"size:36;not null;index"`
	Sequence         int       `json:"sequence" gorm:"not null;default:0"`
	OperationType    string    `json:"operation_type" gorm:"size:50;not null"` // cutting, stitching, finishing...
	MachineType      string    `json:"machine_type" gorm:"size:50"`
	EstimatedSeconds int       `json:"estimated_seconds" gorm:"default:0"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (ProductOperation) TableName() string {
	return "erp_product_operations"
}
