package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuotationApproval 报价审批通过后传入的生产需求
type QuotationApproval struct {
	QuotationID     string         `json:"quotation_id"`
	QuotationNumber string         `json:"quotation_number"`
	CustomerID      string         `json:"customer_id"`
	CustomerName    string         `json:"customer_name"`
	Priority        int            `json:"priority"`
	Lines           []ApprovalLine `json:"lines" binding:"required,min=1,dive"`
}

// ApprovalLine 审批通过的报价行
type ApprovalLine struct {
	LineNo     int               `json:"line_no"`
	ProductID  string            `json:"product_id" binding:"required"`
	VariantID  string            `json:"variant_id"`
	Attributes entity.Attributes `json:"attributes"`
	Quantity   int               `json:"quantity"`
}

// SkippedLine 未能生成工单的报价行
type SkippedLine struct {
	LineNo    int    `json:"line_no"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Reason    string `json:"reason"`
}

// GenerateResult 工单生成结果
type GenerateResult struct {
	WorkOrders []*entity.WorkOrder `json:"work_orders"`
	Skipped    []SkippedLine       `json:"skipped"`
}

type woGroup struct {
	product *entity.Product
	variant *entity.ProductVariant
	qty     int
}

// GenerateWorkOrders 每个（产品，变体）生成一张工单，无法解析的行跳过并报告
func (s *ManufacturingService) GenerateWorkOrders(ctx context.Context, approval QuotationApproval, userID string) (*GenerateResult, error) {
	result := &GenerateResult{WorkOrders: []*entity.WorkOrder{}, Skipped: []SkippedLine{}}
	products := make(map[string]*entity.Product)
	groups := make(map[string]*woGroup)
	var order []string

	for i, line := range approval.Lines {
		lineNo := line.LineNo
		if lineNo == 0 {
			lineNo = i + 1
		}
		skip := func(reason string) {
			result.Skipped = append(result.Skipped, SkippedLine{
				LineNo: lineNo, ProductID: line.ProductID, VariantID: line.VariantID, Reason: reason,
			})
		}
		if line.Quantity <= 0 {
			skip("数量必须大于0")
			continue
		}

		product, ok := products[line.ProductID]
		if !ok {
			p, err := s.productRepo.GetByID(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					skip("产品不存在")
					continue
				}
				return nil, &PersistenceError{Op: "读取产品", Err: err}
			}
			product = p
			products[line.ProductID] = p
		}

		// 无变体产品且未指定变体时按产品本身生产
		var variant *entity.ProductVariant
		if len(product.Variants) > 0 || line.VariantID != "" || len(line.Attributes) > 0 {
			v, err := ResolveProductVariant(product, VariantSelector{VariantID: line.VariantID, Attributes: line.Attributes})
			if err != nil {
				skip(err.Error())
				continue
			}
			variant = v
		}

		key := product.ID + "|"
		if variant != nil {
			key += variant.ID
		}
		g, ok := groups[key]
		if !ok {
			g = &woGroup{product: product, variant: variant}
			groups[key] = g
			order = append(order, key)
		}
		g.qty += line.Quantity
	}

	for _, sk := range result.Skipped {
		s.logger.Warn("报价行未生成工单",
			zap.String("quotation", approval.QuotationNumber),
			zap.Int("line_no", sk.LineNo),
			zap.String("reason", sk.Reason))
	}
	if len(order) == 0 {
		return result, validationf("lines", "报价单没有可生成工单的明细")
	}

	for _, key := range order {
		g := groups[key]
		wo := BuildWorkOrder(g.product, g.variant, g.qty)
		wo.WONumber = s.numberer.Next(ctx, s.prefix)
		wo.QuotationID = approval.QuotationID
		wo.QuotationNumber = approval.QuotationNumber
		wo.CustomerID = approval.CustomerID
		wo.CustomerName = approval.CustomerName
		wo.Priority = approval.Priority
		wo.CreatedBy = userID
		result.WorkOrders = append(result.WorkOrders, wo)
	}

	err := s.woRepo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.woRepo.WithTx(tx)
		for _, wo := range result.WorkOrders {
			if err := repo.Create(ctx, wo); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "创建工单", Err: err}
	}

	s.metrics.WorkOrdersCreated.WithLabelValues("quotation").Add(float64(len(result.WorkOrders)))
	s.logger.Info("报价单生成工单",
		zap.String("quotation", approval.QuotationNumber),
		zap.Int("work_orders", len(result.WorkOrders)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// BuildWorkOrder 按产品BOM和数量构造工单，不落库
func BuildWorkOrder(product *entity.Product, variant *entity.ProductVariant, quantity int) *entity.WorkOrder {
	wo := &entity.WorkOrder{
		ID:               uuid.New().String(),
		ProductID:        product.ID,
		ProductCode:      product.Code,
		ProductName:      product.Name,
		Quantity:         quantity,
		OriginalQuantity: quantity,
		Status:           entity.WOStatusPending,
	}
	variantID := ""
	if variant != nil {
		variantID = variant.ID
		wo.VariantID = variant.ID
		wo.VariantSKU = variant.SKU
		wo.VariantAttributes = variant.Attributes
	}
	wo.Operations = copyOperations(wo.ID, product.Operations)

	for i, line := range product.MaterialsFor(variantID) {
		required := round4(line.QuantityPerUnit * float64(quantity))
		wo.Materials = append(wo.Materials, entity.WorkOrderMaterial{
			ID:                 uuid.New().String(),
			WorkOrderID:        wo.ID,
			LineNo:             i + 1,
			RawItemID:          line.RawItemID,
			RawItemCode:        line.RawItemCode,
			RawItemName:        line.RawItemName,
			QuantityPerUnit:    line.QuantityPerUnit,
			OriginalRequired:   required,
			QuantityRequired:   required,
			Unit:               line.Unit,
			UnitCost:           line.UnitCost,
			TotalCost:          lineCost(line.UnitCost, required),
			AllocationStatus:   entity.AllocNotAllocated,
			RawItemVariantID:   line.RawItemVariantID,
			RawItemCombination: line.RawItemCombination,
		})
	}
	return wo
}

func copyOperations(woID string, ops []entity.ProductOperation) []entity.WorkOrderOperation {
	out := make([]entity.WorkOrderOperation, 0, len(ops))
	for _, op := range ops {
		out = append(out, entity.WorkOrderOperation{
			ID:               uuid.New().String(),
			WorkOrderID:      woID,
			Sequence:         op.Sequence,
			OperationType:    op.OperationType,
			MachineType:      op.MachineType,
			EstimatedSeconds: op.EstimatedSeconds,
			Status:           entity.OpStatusPending,
		})
	}
	return out
}

// lineCost 金额保留两位小数
func lineCost(unitCost decimal.Decimal, qty float64) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromFloat(qty)).Round(2)
}

func describeWorkOrder(wo *entity.WorkOrder) string {
	if wo.VariantSKU != "" {
		return fmt.Sprintf("%s %s x%d", wo.WONumber, wo.VariantSKU, wo.Quantity)
	}
	return fmt.Sprintf("%s x%d", wo.WONumber, wo.Quantity)
}
