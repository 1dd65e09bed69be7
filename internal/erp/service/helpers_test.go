package service

import (
	"context"
	"math"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"github.com/bitfantasy/nimo-mes/internal/erp/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	repos    *repository.Repositories
	svc      *Services
	metrics  *Metrics
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := NewServices(repos, Options{Metrics: metrics, StockRetries: 1})
	return &testEnv{db: db, repos: repos, svc: svc, metrics: metrics, registry: reg}
}

// generate 通过工厂为单个产品生成工单
func (e *testEnv) generate(t *testing.T, product *entity.Product, variantID string, qty int) *entity.WorkOrder {
	t.Helper()
	res, err := e.svc.Manufacturing.GenerateWorkOrders(context.Background(), QuotationApproval{
		QuotationID:     "q-1",
		QuotationNumber: "QT-TEST",
		CustomerName:    "测试客户",
		Lines: []ApprovalLine{
			{ProductID: product.ID, VariantID: variantID, Quantity: qty},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("GenerateWorkOrders: %v", err)
	}
	if len(res.WorkOrders) != 1 {
		t.Fatalf("expected 1 work order, got %d", len(res.WorkOrders))
	}
	return res.WorkOrders[0]
}

// assignAll 为所有工序指派机台
func (e *testEnv) assignAll(t *testing.T, woID string) {
	t.Helper()
	wo, err := e.svc.Manufacturing.GetByID(context.Background(), woID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	for _, op := range wo.Operations {
		if _, err := e.svc.Manufacturing.AssignMachine(context.Background(), woID, op.ID, AssignMachineRequest{
			MachineID: "M-" + op.OperationType,
		}); err != nil {
			t.Fatalf("AssignMachine: %v", err)
		}
	}
}

func (e *testEnv) reloadWO(t *testing.T, id string) *entity.WorkOrder {
	t.Helper()
	wo, err := e.repos.WorkOrder.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload work order: %v", err)
	}
	return wo
}

// scenarioX 原料X库存6，单件用量2，工单数量5（需求10）
func scenarioX(t *testing.T, e *testEnv) (*entity.RawItem, *entity.WorkOrder) {
	t.Helper()
	x := testutil.SeedRawItem(t, e.db, "X", 6)
	p := testutil.SeedProduct(t, e.db, "TEE-01",
		[]entity.ProductVariant{{SKU: "TEE-01-M", Attributes: testutil.Attrs("size", "M")}},
		[]testutil.MaterialLine{{Item: x, PerUnit: 2}},
		"cutting", "stitching")
	wo := e.generate(t, p, "TEE-01-M", 5)
	return x, wo
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
