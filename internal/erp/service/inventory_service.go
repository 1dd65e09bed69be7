package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InventoryService 原料库存与流水
type InventoryService struct {
	repo    *repository.RawItemRepository
	locker  StockLocker
	metrics *Metrics
	logger  *zap.Logger
	retries int
}

func NewInventoryService(repo *repository.RawItemRepository, locker StockLocker, metrics *Metrics, logger *zap.Logger, retries int) *InventoryService {
	if retries < 0 {
		retries = 0
	}
	return &InventoryService{repo: repo, locker: locker, metrics: metrics, logger: logger, retries: retries}
}

type CreateRawItemVariantRequest struct {
	Combination entity.Combination `json:"combination" binding:"required"`
	Quantity    float64            `json:"quantity" binding:"gte=0"`
}

type CreateRawItemRequest struct {
	Code     string                        `json:"code" binding:"required"`
	Name     string                        `json:"name" binding:"required"`
	Unit     string                        `json:"unit"`
	Quantity float64                       `json:"quantity" binding:"gte=0"`
	UnitCost decimal.Decimal               `json:"unit_cost"`
	Variants []CreateRawItemVariantRequest `json:"variants"`
}

// CreateRawItem 创建原料，未填汇总库存时取变体库存之和
func (s *InventoryService) CreateRawItem(ctx context.Context, req CreateRawItemRequest) (*entity.RawItem, error) {
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, validationf("code", "原料编码和名称不能为空")
	}
	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}
	item := &entity.RawItem{
		ID:       uuid.New().String(),
		Code:     strings.TrimSpace(req.Code),
		Name:     strings.TrimSpace(req.Name),
		Unit:     unit,
		Quantity: round4(req.Quantity),
		UnitCost: req.UnitCost,
		Version:  1,
	}
	var sum float64
	for _, v := range req.Variants {
		if len(v.Combination) == 0 {
			return nil, validationf("variants", "原料变体属性组合不能为空")
		}
		if v.Quantity < 0 {
			return nil, validationf("variants", "原料变体库存不能为负数")
		}
		item.Variants = append(item.Variants, entity.RawItemVariant{
			ID:          uuid.New().String(),
			RawItemID:   item.ID,
			Combination: v.Combination,
			Quantity:    round4(v.Quantity),
		})
		sum += v.Quantity
	}
	if item.Quantity == 0 && sum > 0 {
		item.Quantity = round4(sum)
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, &PersistenceError{Op: "创建原料", Err: err}
	}
	return item, nil
}

func (s *InventoryService) GetRawItem(ctx context.Context, id string) (*entity.RawItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "原料", ID: id}
		}
		return nil, &PersistenceError{Op: "读取原料", Err: err}
	}
	return item, nil
}

func (s *InventoryService) ListRawItems(ctx context.Context, params repository.RawItemListParams) ([]entity.RawItem, int64, error) {
	return s.repo.List(ctx, params)
}

func (s *InventoryService) ListTransactions(ctx context.Context, rawItemID string, page, size int) ([]entity.StockTransaction, int64, error) {
	return s.repo.ListTransactions(ctx, rawItemID, page, size)
}

type ReceiveStockRequest struct {
	VariantID   string             `json:"variant_id"`
	Combination entity.Combination `json:"combination"`
	Quantity    float64            `json:"quantity" binding:"required,gt=0"`
	Reason      string             `json:"reason"`
}

// ReceiveStock 入库，指定变体时同步增加变体与汇总库存
func (s *InventoryService) ReceiveStock(ctx context.Context, rawItemID string, req ReceiveStockRequest, userID string) (*entity.StockTransaction, error) {
	if req.Quantity <= 0 {
		return nil, validationf("quantity", "入库数量必须大于0")
	}
	pin := entity.NewRawMaterialPin(req.VariantID, req.Combination)
	if pin.Kind != entity.PinNone {
		item, err := s.GetRawItem(ctx, rawItemID)
		if err != nil {
			return nil, err
		}
		if ResolveRawItemVariant(item, pin) == nil {
			return nil, &NotFoundError{Resource: "原料变体", ID: item.Code + "/" + req.VariantID + strings.Join(req.Combination, "/")}
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "原料入库"
	}
	return s.apply(ctx, stockMovement{
		RawItemID:     rawItemID,
		Pin:           pin,
		Delta:         req.Quantity,
		AggregateType: entity.TxTypeAdd,
		VariantType:   entity.TxTypeVariantAdd,
		Reason:        reason,
		RefType:       "ADJUST",
		Actor:         userID,
	})
}

// stockMovement 一次库存变动
type stockMovement struct {
	RawItemID     string
	Pin           entity.RawMaterialPin
	Delta         float64 // 正=入，负=出
	AggregateType string
	VariantType   string
	Reason        string
	RefType       string
	RefID         string
	RefCode       string
	Actor         string
	// 出库时要求可用库存足够，否则视为库存已变化
	RequireAvailable bool
	// 与库存写入同一事务执行，例如回写工单物料行
	OnApply func(tx *gorm.DB, txn *entity.StockTransaction) error
}

// apply 加锁后执行读-改-写，版本冲突时重新读取重试
func (s *InventoryService) apply(ctx context.Context, mv stockMovement) (*entity.StockTransaction, error) {
	unlock, err := s.locker.Lock(ctx, mv.RawItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		txn, err := s.applyOnce(ctx, mv)
		if err == nil {
			s.metrics.StockIssued.WithLabelValues(txn.TransactionType).Inc()
			return txn, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		if attempt < s.retries {
			s.logger.Warn("库存版本冲突，重新读取后重试",
				zap.String("raw_item_id", mv.RawItemID),
				zap.Int("attempt", attempt+1))
			continue
		}
		s.metrics.StockConflicts.Inc()
		return nil, &ConcurrencyError{RawItemID: mv.RawItemID, Message: "库存已被其他操作修改"}
	}
}

func (s *InventoryService) applyOnce(ctx context.Context, mv stockMovement) (*entity.StockTransaction, error) {
	var txn *entity.StockTransaction
	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.GetByID(ctx, mv.RawItemID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Resource: "原料", ID: mv.RawItemID}
			}
			return &PersistenceError{Op: "读取原料库存", Err: err}
		}

		available, variant := availableStock(item, mv.Pin)
		if mv.Delta < 0 && mv.RequireAvailable && available+qtyEpsilon < -mv.Delta {
			s.metrics.StockConflicts.Inc()
			return &ConcurrencyError{
				RawItemID: item.ID,
				Message:   "可用库存 " + formatQty(available) + " 不足以发料 " + formatQty(-mv.Delta),
			}
		}

		txType := mv.AggregateType
		txn = &entity.StockTransaction{
			ID:               uuid.New().String(),
			RawItemID:        item.ID,
			RawItemCode:      item.Code,
			RawItemName:      item.Name,
			Quantity:         round4(mv.Delta),
			PreviousQuantity: item.Quantity,
			Reason:           mv.Reason,
			ReferenceType:    mv.RefType,
			ReferenceID:      mv.RefID,
			ReferenceCode:    mv.RefCode,
			CreatedBy:        mv.Actor,
		}
		if variant != nil {
			txType = mv.VariantType
			prev := variant.Quantity
			variant.Quantity = floorZero(round4(variant.Quantity + mv.Delta))
			next := variant.Quantity
			txn.VariantID = variant.ID
			txn.PreviousVariantQuantity = &prev
			txn.NewVariantQuantity = &next
		}
		item.Quantity = floorZero(round4(item.Quantity + mv.Delta))
		txn.NewQuantity = item.Quantity
		txn.TransactionType = txType

		if err := repo.UpdateStock(ctx, item, variant); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return err
			}
			return &PersistenceError{Op: "写入原料库存", Err: err}
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return &PersistenceError{Op: "写入库存流水", Err: err}
		}
		if mv.OnApply != nil {
			if err := mv.OnApply(tx, txn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

func floorZero(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

func formatQty(x float64) string {
	return decimal.NewFromFloat(x).Round(4).String()
}
