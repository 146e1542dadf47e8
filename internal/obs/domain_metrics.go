package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SalesTotal counts sale outcomes: created, rejected, promo_exhausted, conflict, failed.
	SalesTotal *prometheus.CounterVec
	// SaleAttemptsTotal counts every atomic unit started for a sale, retries included.
	SaleAttemptsTotal prometheus.Counter
	// PromoAppliedTotal counts line items settled with a promo, by scope type.
	PromoAppliedTotal *prometheus.CounterVec
	// PromoUsageRejectedTotal counts sales aborted because a promo ran out of usage.
	PromoUsageRejectedTotal prometheus.Counter
	// PromoImpactRefreshTotal counts impact refresh runs by mode and result.
	PromoImpactRefreshTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SalesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Count of sale outcomes.",
		}, []string{"result"})
		SaleAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_attempts_total",
			Help:      "Total number of sale transaction attempts including retries.",
		})
		PromoAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_applied_total",
			Help:      "Count of line items settled with a promo.",
		}, []string{"scope"})
		PromoUsageRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_usage_rejected_total",
			Help:      "Number of sales aborted by an exhausted promo.",
		})
		PromoImpactRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_impact_refresh_total",
			Help:      "Count of promo impact refresh runs.",
		}, []string{"mode", "result"})

		mustRegisterCollector(reg, SalesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SalesTotal = v
			}
		})
		mustRegisterCollector(reg, SaleAttemptsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SaleAttemptsTotal = v
			}
		})
		mustRegisterCollector(reg, PromoAppliedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromoAppliedTotal = v
			}
		})
		mustRegisterCollector(reg, PromoUsageRejectedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PromoUsageRejectedTotal = v
			}
		})
		mustRegisterCollector(reg, PromoImpactRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromoImpactRefreshTotal = v
			}
		})
	})
}

// The helpers below are no-ops until MustRegisterDomainMetrics has run.

func ObserveSale(result string) {
	if SalesTotal != nil {
		SalesTotal.WithLabelValues(result).Inc()
	}
}

func ObserveSaleAttempt() {
	if SaleAttemptsTotal != nil {
		SaleAttemptsTotal.Inc()
	}
}

func ObservePromoApplied(scope string) {
	if PromoAppliedTotal != nil {
		PromoAppliedTotal.WithLabelValues(scope).Inc()
	}
}

func ObservePromoUsageRejected() {
	if PromoUsageRejectedTotal != nil {
		PromoUsageRejectedTotal.Inc()
	}
}

func ObserveImpactRefresh(mode, result string) {
	if PromoImpactRefreshTotal != nil {
		PromoImpactRefreshTotal.WithLabelValues(mode, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
