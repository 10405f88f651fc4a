// Package metrics holds process wide prometheus collectors.
// They are exposed by the HTTP server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinledger",
		Name:      "ledger_transactions_total",
		Help:      "Ledger transactions recorded, by type and status.",
	}, []string{"type", "status"})

	LedgerCoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinledger",
		Name:      "ledger_coins_total",
		Help:      "Absolute amount of coins moved by completed transactions, by direction.",
	}, []string{"direction"})

	RewardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinledger",
		Name:      "reward_rejections_total",
		Help:      "Rejected reward claims, by reward type and error code.",
	}, []string{"reward_type", "code"})

	CheckoutOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinledger",
		Name:      "checkout_orders_total",
		Help:      "Checkout attempts, by outcome (completed or error code).",
	}, []string{"outcome"})

	SweepActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinledger",
		Name:      "sweep_actions_total",
		Help:      "Actions taken by the order recovery sweeper.",
	}, []string{"action"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinledger",
		Name:      "http_requests_total",
		Help:      "Served HTTP requests, by method, route pattern and status.",
	}, []string{"method", "route", "status"})

	AuditAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinledger",
		Name:      "audit_alerts_total",
		Help:      "Audit entries escalated to the alert sink, by severity.",
	}, []string{"severity"})
)

func Direction(amount int64) string {
	if amount < 0 {
		return "debit"
	}
	return "credit"
}
