package observability

import (
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPowerPerpMetrics(t *testing.T) {
	m := PowerPerp()
	if m != PowerPerp() {
		t.Fatalf("expected singleton registry")
	}

	m.RecordVaultOp("Mint", nil)
	m.RecordVaultOp("mint", errors.New("boom"))
	if got := testutil.ToFloat64(m.vaultOps.WithLabelValues("mint", "success")); got != 1 {
		t.Fatalf("expected 1 successful mint, got %v", got)
	}
	if got := testutil.ToFloat64(m.vaultOps.WithLabelValues("mint", "error")); got != 1 {
		t.Fatalf("expected 1 failed mint, got %v", got)
	}

	wad := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	m.SetNormalizationFactor(new(big.Int).Div(wad, big.NewInt(2)))
	if got := testutil.ToFloat64(m.normFactor); got != 0.5 {
		t.Fatalf("expected gauge 0.5, got %v", got)
	}

	m.RecordLiquidation("partial", new(big.Int).Mul(wad, big.NewInt(33)))
	if got := testutil.ToFloat64(m.liquidationPayout); got != 33 {
		t.Fatalf("expected payout 33, got %v", got)
	}

	var nilMetrics *PowerPerpMetrics
	nilMetrics.RecordHedge("auction", "sell")
}
