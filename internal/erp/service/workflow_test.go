package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/erp/testutil"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{entity.WOStatusPending, entity.WOStatusPlanned, true},
		{entity.WOStatusPending, entity.WOStatusPartialAllocation, true},
		{entity.WOStatusPending, entity.WOStatusScheduled, false},
		{entity.WOStatusPending, entity.WOStatusInProgress, false},
		{entity.WOStatusPartialAllocation, entity.WOStatusScheduled, true},
		{entity.WOStatusPlanned, entity.WOStatusScheduled, true},
		{entity.WOStatusScheduled, entity.WOStatusInProgress, true},
		{entity.WOStatusScheduled, entity.WOStatusPlanned, false},
		{entity.WOStatusInProgress, entity.WOStatusCompleted, true},
		{entity.WOStatusInProgress, entity.WOStatusCancelled, false},
		{entity.WOStatusCompleted, entity.WOStatusCancelled, false},
		{entity.WOStatusCancelled, entity.WOStatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// plannedWorkOrder 场景X分配3件并完成计划
func plannedWorkOrder(t *testing.T, e *testEnv) (*entity.RawItem, *entity.WorkOrder) {
	t.Helper()
	x, wo := scenarioX(t, e)
	ctx := context.Background()
	if _, err := e.svc.Manufacturing.Allocate(ctx, wo.ID, AllocateRequest{ApprovedQuantity: 3}, "planner"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	e.assignAll(t, wo.ID)
	if _, err := e.svc.Manufacturing.CompletePlanning(ctx, wo.ID, "planner"); err != nil {
		t.Fatalf("CompletePlanning: %v", err)
	}
	return x, wo
}

func TestStartProductionRejectsPending(t *testing.T) {
	e := newTestEnv(t)
	_, wo := scenarioX(t, e)

	_, err := e.svc.Manufacturing.StartProduction(context.Background(), wo.ID, "operator")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if after := e.reloadWO(t, wo.ID); after.Status != entity.WOStatusPending {
		t.Errorf("status = %s", after.Status)
	}
}

func TestProductionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	_, wo := plannedWorkOrder(t, e)
	ctx := context.Background()

	started, err := e.svc.Manufacturing.StartProduction(ctx, wo.ID, "operator")
	if err != nil {
		t.Fatalf("StartProduction: %v", err)
	}
	if started.Status != entity.WOStatusInProgress || started.ActualStart == nil {
		t.Errorf("started = %+v", started)
	}
	after := e.reloadWO(t, wo.ID)
	if after.Operations[0].Status != entity.OpStatusInProgress || after.Operations[1].Status != entity.OpStatusPending {
		t.Errorf("operations = %+v", after.Operations)
	}

	// 生产中不能修改机台
	_, err = e.svc.Manufacturing.AssignMachine(ctx, wo.ID, after.Operations[1].ID, AssignMachineRequest{MachineID: "M-9"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError on in-progress assignment, got %v", err)
	}

	done, err := e.svc.Manufacturing.CompleteProduction(ctx, wo.ID, "operator")
	if err != nil {
		t.Fatalf("CompleteProduction: %v", err)
	}
	if done.Status != entity.WOStatusCompleted || done.ActualEnd == nil {
		t.Errorf("completed = %+v", done)
	}
	for _, op := range e.reloadWO(t, wo.ID).Operations {
		if op.Status != entity.OpStatusCompleted || op.CompletedAt == nil {
			t.Errorf("operation %s = %s", op.OperationType, op.Status)
		}
	}

	if _, err := e.svc.Manufacturing.CompleteProduction(ctx, wo.ID, "operator"); err == nil {
		t.Errorf("completing twice should fail")
	}
}

func TestStartProductionRevalidatesMachines(t *testing.T) {
	e := newTestEnv(t)
	_, wo := plannedWorkOrder(t, e)
	ctx := context.Background()

	op := e.reloadWO(t, wo.ID).Operations[1]
	if _, err := e.svc.Manufacturing.UnassignMachine(ctx, wo.ID, op.ID); err != nil {
		t.Fatalf("UnassignMachine: %v", err)
	}
	_, err := e.svc.Manufacturing.StartProduction(ctx, wo.ID, "operator")
	var incomplete *IncompletePlanningError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompletePlanningError, got %v", err)
	}
	if len(incomplete.Operations) != 1 || incomplete.Operations[0].OperationID != op.ID {
		t.Errorf("unexpected %+v", incomplete.Operations)
	}
}

func TestAssignMachineDefaultsPlannedSeconds(t *testing.T) {
	e := newTestEnv(t)
	_, wo := scenarioX(t, e)
	ctx := context.Background()
	op := e.reloadWO(t, wo.ID).Operations[1]

	got, err := e.svc.Manufacturing.AssignMachine(ctx, wo.ID, op.ID, AssignMachineRequest{MachineID: "SEW-01", MachineName: "平车1号"})
	if err != nil {
		t.Fatalf("AssignMachine: %v", err)
	}
	if got.PlannedSeconds != 120 || got.AssignedAt == nil {
		t.Errorf("operation = %+v", got)
	}

	if _, err := e.svc.Manufacturing.AssignMachine(ctx, wo.ID, "nope", AssignMachineRequest{MachineID: "SEW-01"}); err == nil {
		t.Errorf("unknown operation should fail")
	} else if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestCancelReturnsIssuedStock(t *testing.T) {
	e := newTestEnv(t)
	x, wo := plannedWorkOrder(t, e)
	ctx := context.Background()

	res, err := e.svc.Manufacturing.Cancel(ctx, wo.ID, CancelRequest{Reason: "客户取消"}, "planner")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(res.Transactions) != 1 || res.Transactions[0].TransactionType != entity.TxTypeReturn || res.Transactions[0].Quantity != 6 {
		t.Errorf("return entries = %+v", res.Transactions)
	}
	if item := testutil.Reload(t, e.db, x.ID); item.Quantity != 6 {
		t.Errorf("stock = %v, want 6", item.Quantity)
	}

	after := e.reloadWO(t, wo.ID)
	if after.Status != entity.WOStatusCancelled || after.CancelReason != "客户取消" || after.CancelledAt == nil {
		t.Errorf("work order = %+v", after)
	}
	m := after.Materials[0]
	if m.QuantityIssued != 0 || m.QuantityAllocated != 0 || m.AllocationStatus != entity.AllocNotAllocated {
		t.Errorf("material = %+v", m)
	}
	if _, total, _ := e.svc.Inventory.ListTransactions(ctx, x.ID, 1, 20); total != 2 {
		t.Errorf("ledger entries = %d, want 2", total)
	}
}

func TestCancelConcurrentlyReturnsOnce(t *testing.T) {
	e := newTestEnv(t)
	x, wo := plannedWorkOrder(t, e)
	ctx := context.Background()

	const callers = 3
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Manufacturing.Cancel(ctx, wo.ID, CancelRequest{Reason: "重复提交"}, "planner")
		}(i)
	}
	wg.Wait()

	var success int
	for _, err := range errs {
		var (
			ce *ConcurrencyError
			ve *ValidationError
		)
		switch {
		case err == nil:
			success++
		case errors.As(err, &ce), errors.As(err, &ve):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if success == 0 {
		t.Fatalf("no caller succeeded: %v", errs)
	}

	if item := testutil.Reload(t, e.db, x.ID); item.Quantity != 6 {
		t.Errorf("stock = %v, want 6", item.Quantity)
	}
	txs, total, _ := e.svc.Inventory.ListTransactions(ctx, x.ID, 1, 20)
	if total != 2 {
		t.Fatalf("ledger entries = %d, want 2", total)
	}
	var returns int
	for _, txn := range txs {
		if txn.TransactionType == entity.TxTypeReturn {
			returns++
		}
	}
	if returns != 1 {
		t.Errorf("return entries = %d, want 1", returns)
	}
}

func TestCancelPendingWritesNoLedger(t *testing.T) {
	e := newTestEnv(t)
	x, wo := scenarioX(t, e)
	ctx := context.Background()

	res, err := e.svc.Manufacturing.Cancel(ctx, wo.ID, CancelRequest{}, "planner")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(res.Transactions) != 0 {
		t.Errorf("unexpected return entries %+v", res.Transactions)
	}
	if _, total, _ := e.svc.Inventory.ListTransactions(ctx, x.ID, 1, 20); total != 0 {
		t.Errorf("ledger entries = %d", total)
	}
}

func TestCancelInProgressRejected(t *testing.T) {
	e := newTestEnv(t)
	_, wo := plannedWorkOrder(t, e)
	ctx := context.Background()

	if _, err := e.svc.Manufacturing.StartProduction(ctx, wo.ID, "operator"); err != nil {
		t.Fatalf("StartProduction: %v", err)
	}
	_, err := e.svc.Manufacturing.Cancel(ctx, wo.ID, CancelRequest{}, "planner")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
