package service

import (
	"context"
	"reflect"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
)

func capacityWO(qty int, lines ...entity.WorkOrderMaterial) *entity.WorkOrder {
	return &entity.WorkOrder{ID: "wo", Quantity: qty, OriginalQuantity: qty, Materials: lines}
}

func TestComputeCapacityBlockingMaterial(t *testing.T) {
	wo := capacityWO(5, entity.WorkOrderMaterial{ID: "m1", RawItemID: "x", RawItemCode: "X", QuantityRequired: 10})
	stock := map[string]*entity.RawItem{"x": {ID: "x", Quantity: 6}}

	res := ComputeCapacity(wo, stock)
	if res.MaxProducible != 3 {
		t.Fatalf("max producible = %d, want 3", res.MaxProducible)
	}
	m := res.Materials[0]
	if m.Status != CapacityPartial || m.MaxUnits != 3 || !approxEqual(m.RequiredPerUnit, 2) {
		t.Errorf("unexpected detail %+v", m)
	}
	if res.Limiting == nil || res.Limiting.RawItemCode != "X" {
		t.Errorf("limiting material not reported: %+v", res.Limiting)
	}
}

func TestComputeCapacityBoundaries(t *testing.T) {
	lines := []entity.WorkOrderMaterial{
		{ID: "m1", RawItemID: "a", QuantityRequired: 10},
		{ID: "m2", RawItemID: "b", QuantityRequired: 5},
	}

	t.Run("zero stock", func(t *testing.T) {
		res := ComputeCapacity(capacityWO(5, lines...), map[string]*entity.RawItem{
			"a": {ID: "a", Quantity: 1000},
			"b": {ID: "b", Quantity: 0},
		})
		if res.MaxProducible != 0 {
			t.Errorf("max producible = %d, want 0", res.MaxProducible)
		}
		if res.Materials[1].Status != CapacityInsufficient {
			t.Errorf("status = %s", res.Materials[1].Status)
		}
	})

	t.Run("abundant", func(t *testing.T) {
		res := ComputeCapacity(capacityWO(5, lines...), map[string]*entity.RawItem{
			"a": {ID: "a", Quantity: 1000},
			"b": {ID: "b", Quantity: 1000},
		})
		if res.MaxProducible != 5 {
			t.Errorf("max producible = %d, want 5", res.MaxProducible)
		}
		for _, m := range res.Materials {
			if m.Status != CapacitySufficient {
				t.Errorf("material %s status %s", m.MaterialID, m.Status)
			}
		}
		if res.Limiting != nil {
			t.Errorf("no limiting material expected")
		}
	})

	t.Run("zero quantity", func(t *testing.T) {
		res := ComputeCapacity(capacityWO(0, lines...), map[string]*entity.RawItem{
			"a": {ID: "a", Quantity: 0},
			"b": {ID: "b", Quantity: 0},
		})
		if res.MaxProducible != 0 {
			t.Errorf("max producible = %d", res.MaxProducible)
		}
		for _, m := range res.Materials {
			if m.RequiredPerUnit != 0 || !m.Unconstrained {
				t.Errorf("zero quantity must not divide: %+v", m)
			}
		}
	})

	t.Run("zero requirement not limiting", func(t *testing.T) {
		res := ComputeCapacity(capacityWO(4, entity.WorkOrderMaterial{ID: "m", RawItemID: "a", QuantityRequired: 0}),
			map[string]*entity.RawItem{"a": {ID: "a", Quantity: 0}})
		if res.MaxProducible != 4 || !res.Materials[0].Unconstrained {
			t.Errorf("unexpected %+v", res)
		}
	})

	t.Run("floating point floor", func(t *testing.T) {
		// 0.3 / 0.1 = 2.9999999999999996
		res := ComputeCapacity(capacityWO(10, entity.WorkOrderMaterial{ID: "m", RawItemID: "a", QuantityRequired: 1}),
			map[string]*entity.RawItem{"a": {ID: "a", Quantity: 0.3}})
		if res.MaxProducible != 3 {
			t.Errorf("max producible = %d, want 3", res.MaxProducible)
		}
	})
}

func TestComputeCapacityUsesPinnedVariant(t *testing.T) {
	wo := capacityWO(4, entity.WorkOrderMaterial{ID: "m", RawItemID: "a", QuantityRequired: 8, RawItemVariantID: "rv"})
	stock := map[string]*entity.RawItem{"a": {
		ID: "a", Quantity: 100,
		Variants: []entity.RawItemVariant{{ID: "rv", Quantity: 4}},
	}}
	res := ComputeCapacity(wo, stock)
	if res.MaxProducible != 2 || res.Materials[0].RawItemVariantID != "rv" {
		t.Errorf("unexpected %+v", res.Materials[0])
	}
}

func TestComputeCapacityPoolsSharedStock(t *testing.T) {
	stock := map[string]*entity.RawItem{"a": {
		ID: "a", Quantity: 6,
		Variants: []entity.RawItemVariant{{ID: "black", Quantity: 3}, {ID: "white", Quantity: 3}},
	}}

	t.Run("same raw item", func(t *testing.T) {
		res := ComputeCapacity(capacityWO(3,
			entity.WorkOrderMaterial{ID: "m1", RawItemID: "a", QuantityRequired: 6},
			entity.WorkOrderMaterial{ID: "m2", RawItemID: "a", QuantityRequired: 6},
		), stock)
		if res.MaxProducible != 1 {
			t.Fatalf("max producible = %d, want 1", res.MaxProducible)
		}
		for _, m := range res.Materials {
			if !approxEqual(m.PooledPerUnit, 4) || m.MaxUnits != 1 || m.Status != CapacityPartial {
				t.Errorf("unexpected %+v", m)
			}
		}
	})

	t.Run("different variants do not pool", func(t *testing.T) {
		res := ComputeCapacity(capacityWO(3,
			entity.WorkOrderMaterial{ID: "m1", RawItemID: "a", QuantityRequired: 3, RawItemVariantID: "black"},
			entity.WorkOrderMaterial{ID: "m2", RawItemID: "a", QuantityRequired: 3, RawItemVariantID: "white"},
		), stock)
		if res.MaxProducible != 3 {
			t.Errorf("max producible = %d, want 3", res.MaxProducible)
		}
	})

	t.Run("same variant pools", func(t *testing.T) {
		res := ComputeCapacity(capacityWO(3,
			entity.WorkOrderMaterial{ID: "m1", RawItemID: "a", QuantityRequired: 3, RawItemVariantID: "black"},
			entity.WorkOrderMaterial{ID: "m2", RawItemID: "a", QuantityRequired: 3, RawItemVariantID: "black"},
		), stock)
		if res.MaxProducible != 1 || res.Limiting == nil || res.Limiting.RawItemVariantID != "black" {
			t.Errorf("unexpected %+v", res)
		}
	})
}

func TestCapacityIsReadOnlyAndIdempotent(t *testing.T) {
	e := newTestEnv(t)
	x, wo := scenarioX(t, e)
	ctx := context.Background()

	first, err := e.svc.Manufacturing.Capacity(ctx, wo.ID)
	if err != nil {
		t.Fatalf("Capacity: %v", err)
	}
	second, err := e.svc.Manufacturing.Capacity(ctx, wo.ID)
	if err != nil {
		t.Fatalf("Capacity: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("capacity not idempotent:\n%+v\n%+v", first, second)
	}
	if first.MaxProducible != 3 {
		t.Errorf("max producible = %d", first.MaxProducible)
	}

	after := e.reloadWO(t, wo.ID)
	if after.Status != entity.WOStatusPending || after.Materials[0].QuantityAllocated != 0 {
		t.Errorf("work order mutated: %+v", after)
	}
	if item, _ := e.repos.RawItem.GetByID(ctx, x.ID); item.Quantity != 6 || item.Version != 1 {
		t.Errorf("stock mutated: %+v", item)
	}
}

func TestCapacityMissingRawItem(t *testing.T) {
	e := newTestEnv(t)
	x, wo := scenarioX(t, e)
	e.db.Exec("DELETE FROM erp_raw_items WHERE id = ?", x.ID)

	_, err := e.svc.Manufacturing.Capacity(context.Background(), wo.ID)
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
