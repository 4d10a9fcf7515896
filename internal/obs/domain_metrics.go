package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PassportIssuedTotal counts passport voucher batches issued to users.
	PassportIssuedTotal prometheus.Counter
	// RedemptionCheckTotal counts merchant check (preview) outcomes.
	RedemptionCheckTotal *prometheus.CounterVec
	// RedemptionConfirmTotal counts merchant confirm outcomes.
	RedemptionConfirmTotal *prometheus.CounterVec
	// VouchersExpiredTotal counts vouchers flipped to expired by the sweep.
	VouchersExpiredTotal prometheus.Counter
	// WebhookDeliveriesTotal tracks webhook dispatch outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// WebhookAttemptLatency records delivery attempt latency in milliseconds.
	WebhookAttemptLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PassportIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passport_issued_total",
			Help:      "Number of voucher batches issued on first passport access.",
		})
		RedemptionCheckTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemption_check_total",
			Help:      "Count of validator check outcomes.",
		}, []string{"result"})
		RedemptionConfirmTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemption_confirm_total",
			Help:      "Count of validator confirm outcomes.",
		}, []string{"result"})
		VouchersExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouchers_expired_total",
			Help:      "Number of vouchers transitioned to expired by the sweep job.",
		})
		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook delivery outcomes.",
		}, []string{"result"})
		WebhookAttemptLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_ms",
			Help:      "Latency for webhook delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})

		mustRegisterCollector(reg, PassportIssuedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PassportIssuedTotal = v
			}
		})
		mustRegisterCollector(reg, RedemptionCheckTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RedemptionCheckTotal = v
			}
		})
		mustRegisterCollector(reg, RedemptionConfirmTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RedemptionConfirmTotal = v
			}
		})
		mustRegisterCollector(reg, VouchersExpiredTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				VouchersExpiredTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookAttemptLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				WebhookAttemptLatency = v
			}
		})
	})
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
