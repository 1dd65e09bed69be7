package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuotationService 报价单录入与审批，审批通过后生成工单
type QuotationService struct {
	repo          *repository.QuotationRepository
	manufacturing *ManufacturingService
	numberer      *Numberer
	logger        *zap.Logger
}

func NewQuotationService(repo *repository.QuotationRepository, manufacturing *ManufacturingService, numberer *Numberer, logger *zap.Logger) *QuotationService {
	return &QuotationService{repo: repo, manufacturing: manufacturing, numberer: numberer, logger: logger}
}

type CreateQuotationRequest struct {
	QuotationNumber string                `json:"quotation_number"`
	CustomerID      string                `json:"customer_id"`
	CustomerName    string                `json:"customer_name" binding:"required"`
	Priority        int                   `json:"priority"`
	Notes           string                `json:"notes"`
	Lines           []CreateQuotationLine `json:"lines" binding:"required,min=1,dive"`
}

type CreateQuotationLine struct {
	ProductID         string            `json:"product_id" binding:"required"`
	VariantID         string            `json:"variant_id"`
	VariantAttributes entity.Attributes `json:"variant_attributes"`
	Quantity          int               `json:"quantity" binding:"required,gt=0"`
}

func (s *QuotationService) Create(ctx context.Context, req CreateQuotationRequest, userID string) (*entity.Quotation, error) {
	if len(req.Lines) == 0 {
		return nil, validationf("lines", "报价单至少需要一行明细")
	}
	number := req.QuotationNumber
	if number == "" {
		number = s.numberer.Next(ctx, "QT")
	}
	q := &entity.Quotation{
		ID:              uuid.New().String(),
		QuotationNumber: number,
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		Priority:        req.Priority,
		Status:          entity.QuotationStatusPending,
		Notes:           req.Notes,
		CreatedBy:       userID,
	}
	for i, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, validationf("lines", "第 %d 行数量必须大于0", i+1)
		}
		q.Lines = append(q.Lines, entity.QuotationLine{
			ID:                uuid.New().String(),
			QuotationID:       q.ID,
			LineNo:            i + 1,
			ProductID:         l.ProductID,
			VariantID:         l.VariantID,
			VariantAttributes: l.VariantAttributes,
			Quantity:          l.Quantity,
		})
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, &PersistenceError{Op: "创建报价单", Err: err}
	}
	return q, nil
}

func (s *QuotationService) GetByID(ctx context.Context, id string) (*entity.Quotation, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "报价单", ID: id}
		}
		return nil, &PersistenceError{Op: "读取报价单", Err: err}
	}
	return q, nil
}

// ApproveResult 审批结果
type ApproveResult struct {
	Quotation *entity.Quotation `json:"quotation"`
	*GenerateResult
}

// Approve 审批报价单并按明细生成工单，同一报价单只能审批一次
func (s *QuotationService) Approve(ctx context.Context, id, userID string) (*ApproveResult, error) {
	q, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status != entity.QuotationStatusPending {
		return nil, validationf("status", "报价单 %s 已审批", q.QuotationNumber)
	}

	now := time.Now()
	q.ApprovedBy = userID
	q.ApprovedAt = &now
	ok, err := s.repo.MarkApproved(ctx, q)
	if err != nil {
		return nil, &PersistenceError{Op: "审批报价单", Err: err}
	}
	if !ok {
		return nil, validationf("status", "报价单 %s 已审批", q.QuotationNumber)
	}
	q.Status = entity.QuotationStatusApproved

	approval := QuotationApproval{
		QuotationID:     q.ID,
		QuotationNumber: q.QuotationNumber,
		CustomerID:      q.CustomerID,
		CustomerName:    q.CustomerName,
		Priority:        q.Priority,
	}
	for _, l := range q.Lines {
		approval.Lines = append(approval.Lines, ApprovalLine{
			LineNo:     l.LineNo,
			ProductID:  l.ProductID,
			VariantID:  l.VariantID,
			Attributes: l.VariantAttributes,
			Quantity:   l.Quantity,
		})
	}

	generated, err := s.manufacturing.GenerateWorkOrders(ctx, approval, userID)
	if err != nil {
		// 工单未生成，报价单退回待审批
		q.Status = entity.QuotationStatusPending
		q.ApprovedBy = ""
		q.ApprovedAt = nil
		if rbErr := s.repo.Update(ctx, q); rbErr != nil {
			s.logger.Error("报价单状态回退失败", zap.String("quotation", q.QuotationNumber), zap.Error(rbErr))
		}
		if generated != nil {
			return &ApproveResult{Quotation: q, GenerateResult: generated}, err
		}
		return nil, err
	}
	return &ApproveResult{Quotation: q, GenerateResult: generated}, nil
}
