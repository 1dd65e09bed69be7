package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 生产计划指标
type Metrics struct {
	WorkOrdersCreated *prometheus.CounterVec
	Allocations       *prometheus.CounterVec
	Splits            prometheus.Counter
	StockIssued       *prometheus.CounterVec
	StockConflicts    prometheus.Counter
	PlanningDuration  prometheus.Histogram
}

// NewMetrics 在给定Registerer上注册，reg为nil时只创建不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WorkOrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimo_mes_work_orders_created_total",
			Help: "Work orders created, by source.",
		}, []string{"source"}),
		Allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimo_mes_allocations_total",
			Help: "Allocation attempts, by result.",
		}, []string{"result"}),
		Splits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimo_mes_splits_total",
			Help: "Split work orders created from partial allocations.",
		}),
		StockIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimo_mes_stock_issued_total",
			Help: "Stock ledger entries written, by transaction type.",
		}, []string{"type"}),
		StockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimo_mes_stock_conflicts_total",
			Help: "Stock writes rejected after optimistic retry.",
		}),
		PlanningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nimo_mes_planning_duration_seconds",
			Help:    "Duration of complete-planning calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.WorkOrdersCreated, m.Allocations, m.Splits,
			m.StockIssued, m.StockConflicts, m.PlanningDuration)
	}
	return m
}

func (m *Metrics) observePlanning(start time.Time) {
	m.PlanningDuration.Observe(time.Since(start).Seconds())
}
