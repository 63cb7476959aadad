package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BillingPreviewTotal counts preview computations by outcome.
	BillingPreviewTotal *prometheus.CounterVec
	// BillingConfirmTotal counts invoice confirmation outcomes.
	BillingConfirmTotal *prometheus.CounterVec
	// InvoiceLineCount records the number of lines per confirmed invoice.
	InvoiceLineCount prometheus.Histogram
	// OfferAppliedTotal counts offer applications by offer type.
	OfferAppliedTotal *prometheus.CounterVec
	// InsufficientStockTotal counts basket rejections due to stock shortage.
	InsufficientStockTotal prometheus.Counter
	// ProductsCreatedTotal counts catalog product registrations.
	ProductsCreatedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific
// Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BillingPreviewTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_preview_total",
			Help:      "Count of invoice preview computations by outcome.",
		}, []string{"result"})
		BillingConfirmTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_confirm_total",
			Help:      "Count of invoice confirmation attempts by outcome.",
		}, []string{"result"})
		InvoiceLineCount = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_line_count",
			Help:      "Distribution of line counts per confirmed invoice.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		})
		OfferAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offer_applied_total",
			Help:      "Count of offers applied to basket lines by offer type.",
		}, []string{"offer_type"})
		InsufficientStockTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_stock_total",
			Help:      "Number of baskets rejected because stock was insufficient.",
		})
		ProductsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_created_total",
			Help:      "Number of products registered in the catalog.",
		})

		mustRegisterCollector(reg, BillingPreviewTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BillingPreviewTotal = v
			}
		})
		mustRegisterCollector(reg, BillingConfirmTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BillingConfirmTotal = v
			}
		})
		mustRegisterCollector(reg, InvoiceLineCount, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				InvoiceLineCount = v
			}
		})
		mustRegisterCollector(reg, OfferAppliedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OfferAppliedTotal = v
			}
		})
		mustRegisterCollector(reg, InsufficientStockTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				InsufficientStockTotal = v
			}
		})
		mustRegisterCollector(reg, ProductsCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ProductsCreatedTotal = v
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
