package service

import (
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
)

// VariantSelector 报价行对产品变体的选择
type VariantSelector struct {
	VariantID  string            `json:"variant_id"`
	Attributes entity.Attributes `json:"attributes"`
}

// ResolveProductVariant 匹配顺序：变体ID、属性集合（与顺序无关）、把ID当作SKU
func ResolveProductVariant(product *entity.Product, sel VariantSelector) (*entity.ProductVariant, error) {
	if sel.VariantID != "" {
		for i := range product.Variants {
			if product.Variants[i].ID == sel.VariantID {
				return &product.Variants[i], nil
			}
		}
	}
	if len(sel.Attributes) > 0 {
		for i := range product.Variants {
			if sameAttributes(product.Variants[i].Attributes, sel.Attributes) {
				return &product.Variants[i], nil
			}
		}
	}
	if sel.VariantID != "" {
		for i := range product.Variants {
			if product.Variants[i].SKU != "" && product.Variants[i].SKU == sel.VariantID {
				return &product.Variants[i], nil
			}
		}
	}
	id := sel.VariantID
	if id == "" {
		id = describeAttributes(sel.Attributes)
	}
	return nil, &NotFoundError{Resource: "产品变体", ID: product.Code + "/" + id}
}

func sameAttributes(a, b entity.Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	want := make(map[string]string, len(b))
	for _, attr := range b {
		want[strings.TrimSpace(attr.Name)] = strings.TrimSpace(attr.Value)
	}
	if len(want) != len(b) {
		return false
	}
	for _, attr := range a {
		v, ok := want[strings.TrimSpace(attr.Name)]
		if !ok || v != strings.TrimSpace(attr.Value) {
			return false
		}
	}
	return true
}

func describeAttributes(attrs entity.Attributes) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, a.Name+"="+a.Value)
	}
	return strings.Join(parts, ",")
}

// ResolveRawItemVariant 解析BOM行指定的原料变体，无法解析返回nil（调用方退回汇总库存）
func ResolveRawItemVariant(item *entity.RawItem, pin entity.RawMaterialPin) *entity.RawItemVariant {
	if item == nil {
		return nil
	}
	switch pin.Kind {
	case entity.PinByID:
		for i := range item.Variants {
			if item.Variants[i].ID == pin.VariantID {
				return &item.Variants[i]
			}
		}
	case entity.PinByAttributes:
		for i := range item.Variants {
			if sameCombination(item.Variants[i].Combination, pin.Combination) {
				return &item.Variants[i]
			}
		}
	}
	return nil
}

func sameCombination(a, b entity.Combination) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// availableStock 可用库存：变体解析成功用变体库存，否则用汇总库存
func availableStock(item *entity.RawItem, pin entity.RawMaterialPin) (float64, *entity.RawItemVariant) {
	if item == nil {
		return 0, nil
	}
	if v := ResolveRawItemVariant(item, pin); v != nil {
		return v.Quantity, v
	}
	return item.Quantity, nil
}
