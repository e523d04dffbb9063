package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PowerPerpMetrics tracks vault, liquidation, hedge and funding activity.
type PowerPerpMetrics struct {
	vaultOps          *prometheus.CounterVec
	liquidations      *prometheus.CounterVec
	liquidationPayout prometheus.Counter
	hedges            *prometheus.CounterVec
	normFactor        prometheus.Gauge
	fundingRefreshes  prometheus.Counter
}

var (
	powerPerpOnce     sync.Once
	powerPerpRegistry *PowerPerpMetrics
)

// PowerPerp returns the lazily-initialised metrics registry shared by the
// controller, funding and strategy engines.
func PowerPerp() *PowerPerpMetrics {
	powerPerpOnce.Do(func() {
		powerPerpRegistry = &PowerPerpMetrics{
			vaultOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "powerperp",
				Name:      "vault_operations_total",
				Help:      "Vault operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "powerperp",
				Name:      "liquidations_total",
				Help:      "Liquidations segmented by kind (save, partial).",
			}, []string{"kind"}),
			liquidationPayout: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "powerperp",
				Name:      "liquidation_collateral_paid_total",
				Help:      "Collateral paid to liquidators in native units.",
			}),
			hedges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "powerperp",
				Name:      "hedges_total",
				Help:      "Executed strategy hedges segmented by path and direction.",
			}, []string{"path", "direction"}),
			normFactor: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "powerperp",
				Name:      "normalization_factor",
				Help:      "Latest persisted normalization factor.",
			}),
			fundingRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "powerperp",
				Name:      "funding_refresh_total",
				Help:      "Count of normalization factor updates.",
			}),
		}
		prometheus.MustRegister(
			powerPerpRegistry.vaultOps,
			powerPerpRegistry.liquidations,
			powerPerpRegistry.liquidationPayout,
			powerPerpRegistry.hedges,
			powerPerpRegistry.normFactor,
			powerPerpRegistry.fundingRefreshes,
		)
	})
	return powerPerpRegistry
}

func label(value, fallback string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

// RecordVaultOp increments the operation counter. A nil err counts as success.
func (m *PowerPerpMetrics) RecordVaultOp(op string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.vaultOps.WithLabelValues(label(op, "unknown"), outcome).Inc()
}

// RecordLiquidation counts a liquidation and the collateral it paid out.
func (m *PowerPerpMetrics) RecordLiquidation(kind string, paid *big.Int) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(label(kind, "unknown")).Inc()
	if paid != nil && paid.Sign() > 0 {
		m.liquidationPayout.Add(wadToFloat(paid))
	}
}

func (m *PowerPerpMetrics) RecordHedge(path, direction string) {
	if m == nil {
		return
	}
	m.hedges.WithLabelValues(label(path, "unknown"), label(direction, "unknown")).Inc()
}

// SetNormalizationFactor publishes the factor and counts the refresh.
func (m *PowerPerpMetrics) SetNormalizationFactor(value *big.Int) {
	if m == nil || value == nil {
		return
	}
	m.normFactor.Set(wadToFloat(value))
	m.fundingRefreshes.Inc()
}

var wadFloat = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func wadToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), wadFloat).Float64()
	return f
}
