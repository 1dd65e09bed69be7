package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate 自动迁移所有ERP表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// 产品目录
		&Product{},
		&ProductVariant{},
		&ProductMaterial{},
		&ProductOperation{},

		// 原料库存
		&RawItem{},
		&RawItemVariant{},
		&StockTransaction{},

		// 报价
		&Quotation{},
		&QuotationLine{},

		// 生产
		&WorkOrder{},
		&WorkOrderOperation{},
		&WorkOrderMaterial{},
	)
}

// Attribute 规格属性（名称/值）
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attributes 规格属性集合，JSON存储
type Attributes []Attribute

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	return string(b), err
}

func (a *Attributes) Scan(value interface{}) error {
	return scanJSON(value, a)
}

// Combination 原料变体属性值组合，有序
type Combination []string

func (c Combination) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	return string(b), err
}

func (c *Combination) Scan(value interface{}) error {
	return scanJSON(value, c)
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
}
