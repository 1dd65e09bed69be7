package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/erp/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAllocateSplitsRemainder(t *testing.T) {
	e := newTestEnv(t)
	x, wo := scenarioX(t, e)
	ctx := context.Background()

	res, err := e.svc.Manufacturing.Allocate(ctx, wo.ID, AllocateRequest{ApprovedQuantity: 3, SplitRemaining: true}, "planner")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	parent := e.reloadWO(t, wo.ID)
	if parent.Quantity != 3 || parent.OriginalQuantity != 5 {
		t.Errorf("parent quantity = %d/%d", parent.Quantity, parent.OriginalQuantity)
	}
	if parent.Status != entity.WOStatusPartialAllocation {
		t.Errorf("parent status = %s", parent.Status)
	}
	pm := parent.Materials[0]
	if !approxEqual(pm.QuantityRequired, 6) || !approxEqual(pm.QuantityAllocated, 6) || pm.AllocationStatus != entity.AllocFullyAllocated {
		t.Errorf("parent material = %+v", pm)
	}
	if !approxEqual(pm.OriginalRequired, 10) {
		t.Errorf("original required changed: %v", pm.OriginalRequired)
	}

	child := res.NewWorkOrder
	if child == nil {
		t.Fatal("expected split child")
	}
	if child.Quantity != 2 || child.Status != entity.WOStatusPending || !child.IsSplitOrder || child.ParentWorkOrderID != wo.ID {
		t.Errorf("unexpected child %+v", child)
	}
	if child.WONumber != wo.WONumber+"-S1" {
		t.Errorf("child number = %s", child.WONumber)
	}
	if !approxEqual(child.Materials[0].QuantityRequired, 4) || child.Materials[0].QuantityAllocated != 0 {
		t.Errorf("child material = %+v", child.Materials[0])
	}
	if len(child.Operations) != len(parent.Operations) {
		t.Errorf("child operations = %d", len(child.Operations))
	}

	// 数量守恒
	if parent.Quantity+child.Quantity != parent.OriginalQuantity {
		t.Errorf("quantity not conserved: %d + %d", parent.Quantity, child.Quantity)
	}
	if !approxEqual(pm.QuantityRequired+child.Materials[0].QuantityRequired, pm.OriginalRequired) {
		t.Errorf("material not conserved")
	}

	// 分配不扣减库存
	if item := testutil.Reload(t, e.db, x.ID); item.Quantity != 6 {
		t.Errorf("stock changed on allocate: %v", item.Quantity)
	}

	children, err := e.svc.Manufacturing.ListSplitChildren(ctx, wo.ID)
	if err != nil || len(children) != 1 || children[0].ID != child.ID {
		t.Errorf("ListSplitChildren = %v, %v", children, err)
	}

	if got := promtest.ToFloat64(e.metrics.Splits); got != 1 {
		t.Errorf("splits metric = %v", got)
	}
	if got := promtest.ToFloat64(e.metrics.WorkOrdersCreated.WithLabelValues("split")); got != 1 {
		t.Errorf("split created metric = %v", got)
	}
}

func TestAllocateWithoutSplit(t *testing.T) {
	e := newTestEnv(t)
	_, wo := scenarioX(t, e)

	res, err := e.svc.Manufacturing.Allocate(context.Background(), wo.ID, AllocateRequest{ApprovedQuantity: 2}, "planner")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if res.NewWorkOrder != nil {
		t.Errorf("no child expected")
	}
	n, _ := e.repos.WorkOrder.CountChildren(context.Background(), wo.ID)
	if n != 0 {
		t.Errorf("children = %d", n)
	}
	if res.WorkOrder.Quantity != 2 || !approxEqual(res.WorkOrder.Materials[0].QuantityRequired, 4) {
		t.Errorf("unexpected %+v", res.WorkOrder)
	}
}

func TestAllocateFullQuantityPlanned(t *testing.T) {
	e := newTestEnv(t)
	x := testutil.SeedRawItem(t, e.db, "X", 100)
	p := testutil.SeedProduct(t, e.db, "TEE-02", nil, []testutil.MaterialLine{{Item: x, PerUnit: 2}}, "cutting")
	wo := e.generate(t, p, "", 5)

	res, err := e.svc.Manufacturing.Allocate(context.Background(), wo.ID, AllocateRequest{ApprovedQuantity: 5, SplitRemaining: true}, "planner")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if res.WorkOrder.Status != entity.WOStatusPlanned || res.NewWorkOrder != nil {
		t.Errorf("status = %s child = %v", res.WorkOrder.Status, res.NewWorkOrder)
	}
}

func TestAllocateCapacityExceeded(t *testing.T) {
	e := newTestEnv(t)
	_, wo := scenarioX(t, e)

	_, err := e.svc.Manufacturing.Allocate(context.Background(), wo.ID, AllocateRequest{ApprovedQuantity: 4, SplitRemaining: true}, "planner")
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if capErr.MaxProducible != 3 || capErr.BlockingMaterial != "X" || !approxEqual(capErr.Shortfall, 2) {
		t.Errorf("unexpected %+v", capErr)
	}

	after := e.reloadWO(t, wo.ID)
	if after.Status != entity.WOStatusPending || after.Quantity != 5 {
		t.Errorf("work order mutated: %+v", after)
	}
	if n, _ := e.repos.WorkOrder.CountChildren(context.Background(), wo.ID); n != 0 {
		t.Errorf("children created on failure")
	}
	if got := promtest.ToFloat64(e.metrics.Allocations.WithLabelValues("capacity")); got != 1 {
		t.Errorf("capacity metric = %v", got)
	}
}

func TestAllocateRejectsInvalidQuantity(t *testing.T) {
	e := newTestEnv(t)
	_, wo := scenarioX(t, e)

	for _, qty := range []int{0, -1, 6} {
		_, err := e.svc.Manufacturing.Allocate(context.Background(), wo.ID, AllocateRequest{ApprovedQuantity: qty}, "planner")
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("qty %d: expected ValidationError, got %v", qty, err)
		}
	}
}

func TestAllocateRepeatedDoesNotDrift(t *testing.T) {
	e := newTestEnv(t)
	x := testutil.SeedRawItem(t, e.db, "X", 1000)
	p := testutil.SeedProduct(t, e.db, "TEE-03", nil, []testutil.MaterialLine{{Item: x, PerUnit: 0.3333}}, "cutting")
	wo := e.generate(t, p, "", 7)
	ctx := context.Background()

	for _, qty := range []int{6, 6, 5, 5, 3} {
		if _, err := e.svc.Manufacturing.Allocate(ctx, wo.ID, AllocateRequest{ApprovedQuantity: qty}, "planner"); err != nil {
			t.Fatalf("Allocate %d: %v", qty, err)
		}
	}
	after := e.reloadWO(t, wo.ID)
	m := after.Materials[0]
	want := baselineRequired(m.OriginalRequired, 7, 3)
	if m.QuantityRequired != want {
		t.Errorf("required drifted: got %v want %v", m.QuantityRequired, want)
	}
	if !approxEqual(m.OriginalRequired, 2.3331) {
		t.Errorf("original required = %v", m.OriginalRequired)
	}
}

func TestAllocateSecondSplitNumbering(t *testing.T) {
	e := newTestEnv(t)
	x := testutil.SeedRawItem(t, e.db, "X", 1000)
	p := testutil.SeedProduct(t, e.db, "TEE-04", nil, []testutil.MaterialLine{{Item: x, PerUnit: 1}}, "cutting")
	wo := e.generate(t, p, "", 10)
	ctx := context.Background()

	first, err := e.svc.Manufacturing.Allocate(ctx, wo.ID, AllocateRequest{ApprovedQuantity: 8, SplitRemaining: true}, "planner")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	second, err := e.svc.Manufacturing.Allocate(ctx, wo.ID, AllocateRequest{ApprovedQuantity: 6, SplitRemaining: true}, "planner")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first.NewWorkOrder.WONumber != wo.WONumber+"-S1" || second.NewWorkOrder.WONumber != wo.WONumber+"-S2" {
		t.Errorf("numbers = %s, %s", first.NewWorkOrder.WONumber, second.NewWorkOrder.WONumber)
	}
	// 子工单基线来自父单原始需求
	if !approxEqual(second.NewWorkOrder.Materials[0].QuantityRequired, 2) {
		t.Errorf("second child required = %v", second.NewWorkOrder.Materials[0].QuantityRequired)
	}
}

func TestAllocateRejectedAfterIssue(t *testing.T) {
	e := newTestEnv(t)
	_, wo := scenarioX(t, e)
	ctx := context.Background()

	if _, err := e.svc.Manufacturing.Allocate(ctx, wo.ID, AllocateRequest{ApprovedQuantity: 3}, "planner"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	e.assignAll(t, wo.ID)
	if _, err := e.svc.Manufacturing.CompletePlanning(ctx, wo.ID, "planner"); err != nil {
		t.Fatalf("CompletePlanning: %v", err)
	}

	_, err := e.svc.Manufacturing.Allocate(ctx, wo.ID, AllocateRequest{ApprovedQuantity: 2}, "planner")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := promtest.ToFloat64(e.metrics.Allocations.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected metric = %v", got)
	}
}

func TestAllocatePartialStock(t *testing.T) {
	e := newTestEnv(t)
	x := testutil.SeedRawItem(t, e.db, "X", 100)
	y := testutil.SeedRawItem(t, e.db, "Y", 100)
	p := testutil.SeedProduct(t, e.db, "TEE-05", nil, []testutil.MaterialLine{
		{Item: x, PerUnit: 1},
		{Item: y, PerUnit: 0},
	}, "cutting")
	wo := e.generate(t, p, "", 4)

	res, err := e.svc.Manufacturing.Allocate(context.Background(), wo.ID, AllocateRequest{ApprovedQuantity: 4}, "planner")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if res.WorkOrder.Materials[1].AllocationStatus != entity.AllocFullyAllocated {
		t.Errorf("zero requirement line should be fully allocated, got %s", res.WorkOrder.Materials[1].AllocationStatus)
	}
}

func TestAllocateSharesUnreservedStock(t *testing.T) {
	wo := &entity.WorkOrder{Quantity: 2, Materials: []entity.WorkOrderMaterial{
		{ID: "m1", RawItemID: "a", QuantityRequired: 4},
		{ID: "m2", RawItemID: "a", QuantityRequired: 4},
		{ID: "m3", RawItemID: "a", QuantityRequired: 1},
	}}
	allocate(wo, map[string]*entity.RawItem{"a": {ID: "a", Quantity: 5}})

	want := []struct {
		allocated float64
		status    string
	}{
		{4, entity.AllocFullyAllocated},
		{1, entity.AllocPartiallyAllocated},
		{0, entity.AllocNotAllocated},
	}
	var total float64
	for i, m := range wo.Materials {
		total += m.QuantityAllocated
		if !approxEqual(m.QuantityAllocated, want[i].allocated) || m.AllocationStatus != want[i].status {
			t.Errorf("line %s: allocated %v status %s", m.ID, m.QuantityAllocated, m.AllocationStatus)
		}
	}
	if total > 5 {
		t.Errorf("allocated %v exceeds stock 5", total)
	}
}

func TestAllocateUnknownWorkOrder(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.svc.Manufacturing.Allocate(context.Background(), "missing", AllocateRequest{ApprovedQuantity: 1}, "planner")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
