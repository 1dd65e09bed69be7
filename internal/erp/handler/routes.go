package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// 权限
const (
	PermPlan  = "mes:plan"  // 发料、取消
	PermStock = "mes:stock" // 入库
)

// RegisterRoutes 注册 /api/v1/erp 下的路由，rg 需已挂载JWT认证
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	products := rg.Group("/products")
	{
		products.GET("", h.Catalog.List)
		products.POST("", h.Catalog.Create)
		products.GET("/:id", h.Catalog.Get)
	}

	rawItems := rg.Group("/raw-items")
	{
		rawItems.GET("", h.Inventory.List)
		rawItems.POST("", h.Inventory.Create)
		rawItems.GET("/:id", h.Inventory.Get)
		rawItems.POST("/:id/receive", middleware.RequirePermission(PermStock), h.Inventory.Receive)
		rawItems.GET("/:id/transactions", h.Inventory.Transactions)
	}

	quotations := rg.Group("/quotations")
	{
		quotations.POST("", h.Quotation.Create)
		quotations.GET("/:id", h.Quotation.Get)
		quotations.POST("/:id/approve", h.Quotation.Approve)
	}

	wo := rg.Group("/work-orders")
	{
		wo.GET("", h.Manufacturing.List)
		wo.POST("/generate", h.Manufacturing.Generate)
		wo.GET("/:id", h.Manufacturing.Get)
		wo.GET("/:id/children", h.Manufacturing.Children)
		wo.GET("/:id/capacity", h.Manufacturing.Capacity)
		wo.POST("/:id/allocate", h.Manufacturing.Allocate)
		wo.PUT("/:id/operations/:opId/machine", h.Manufacturing.AssignMachine)
		wo.DELETE("/:id/operations/:opId/machine", h.Manufacturing.UnassignMachine)
		wo.POST("/:id/complete-planning", middleware.RequirePermission(PermPlan), h.Manufacturing.CompletePlanning)
		wo.POST("/:id/start", h.Manufacturing.Start)
		wo.POST("/:id/complete", h.Manufacturing.Complete)
		wo.POST("/:id/cancel", middleware.RequirePermission(PermPlan), h.Manufacturing.Cancel)
	}
}
