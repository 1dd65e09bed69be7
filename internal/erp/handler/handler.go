package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/erp/service"
	"github.com/gin-gonic/gin"
)

// Handlers ERP HTTP处理器集合
type Handlers struct {
	Catalog       *CatalogHandler
	Inventory     *InventoryHandler
	Manufacturing *WorkOrderHandler
	Quotation     *QuotationHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Catalog:       NewCatalogHandler(services.Catalog),
		Inventory:     NewInventoryHandler(services.Inventory),
		Manufacturing: NewWorkOrderHandler(services.Manufacturing),
		Quotation:     NewQuotationHandler(services.Quotation),
	}
}

// 错误码
const (
	CodeBadRequest         = 40001
	CodeNotFound           = 40401
	CodeCapacity           = 40901
	CodeIncompletePlanning = 40902
	CodeConcurrency        = 40903
	CodeInternal           = 50001
)

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "message": "success", "data": data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"code": 0, "message": "success", "data": data})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"code": CodeBadRequest, "message": err.Error()})
}

// respondError 业务错误映射为HTTP状态和错误码，data 可附带部分成功的结果
func respondError(c *gin.Context, err error, data interface{}) {
	var (
		validation *service.ValidationError
		notFound   *service.NotFoundError
		capacity   *service.CapacityError
		incomplete *service.IncompletePlanningError
		conflict   *service.ConcurrencyError
		persist    *service.PersistenceError
	)
	body := gin.H{"message": err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status, body["code"] = http.StatusBadRequest, CodeBadRequest
	case errors.As(err, &notFound):
		status, body["code"] = http.StatusNotFound, CodeNotFound
	case errors.As(err, &capacity):
		status, body["code"] = http.StatusConflict, CodeCapacity
		body["data"] = gin.H{
			"requested":         capacity.Requested,
			"max_producible":    capacity.MaxProducible,
			"blocking_raw_item": capacity.BlockingRawItem,
			"blocking_material": capacity.BlockingMaterial,
			"shortfall":         capacity.Shortfall,
		}
	case errors.As(err, &incomplete):
		status, body["code"] = http.StatusConflict, CodeIncompletePlanning
		body["data"] = incomplete
	case errors.As(err, &conflict):
		status, body["code"] = http.StatusConflict, CodeConcurrency
		body["retryable"] = true
		body["issued_line_ids"] = conflict.IssuedLineIDs
	case errors.As(err, &persist):
		body["code"] = CodeInternal
		body["retryable"] = true
		body["issued_line_ids"] = persist.IssuedLineIDs
	default:
		body["code"] = CodeInternal
	}
	if data != nil {
		if _, ok := body["data"]; !ok {
			body["data"] = data
		}
	}
	c.JSON(status, body)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}

func list(c *gin.Context, items interface{}, total int64, page, size int) {
	success(c, gin.H{"items": items, "total": total, "page": page, "size": size})
}

// currentUser JWT中间件写入的用户ID
func currentUser(c *gin.Context) string {
	return c.GetString("user_id")
}
