package submitter

import (
	"fmt"
	"math/big"

	"github.com/AkshayPatel-02/vote-relayer/pkgs/chain"
)

// Speed selects how aggressively transactions are priced relative to the
// node's live fee suggestion
type Speed string

const (
	SpeedStandard Speed = "standard" // suggestion as-is
	SpeedFast     Speed = "fast"     // 1.5x
	SpeedRapid    Speed = "rapid"    // 2x
)

// ParseSpeed validates a configured speed string
func ParseSpeed(s string) (Speed, error) {
	switch Speed(s) {
	case SpeedStandard, SpeedFast, SpeedRapid:
		return Speed(s), nil
	case "":
		return SpeedStandard, nil
	default:
		return "", fmt.Errorf("unknown gas speed %q, expected standard, fast or rapid", s)
	}
}

func (s Speed) multiplier() (int64, int64) {
	switch s {
	case SpeedFast:
		return 150, 100
	case SpeedRapid:
		return 200, 100
	default:
		return 1, 1
	}
}

// GasPlan carries the pricing for one submission attempt. Bump escalates it
// between retries when the node rejects the price.
type GasPlan struct {
	GasLimit  uint64
	GasFeeCap *big.Int
	GasTipCap *big.Int // nil on pre-EIP-1559 chains
}

// NewGasPlan prices a transaction from live fee data, scaled by the
// configured speed tier
func NewGasPlan(fees *chain.FeeData, gasLimit uint64, speed Speed) *GasPlan {
	num, den := speed.multiplier()

	plan := &GasPlan{
		GasLimit:  gasLimit,
		GasFeeCap: scale(fees.GasPrice, num, den),
	}
	if fees.GasTipCap != nil {
		plan.GasTipCap = scale(fees.GasTipCap, num, den)
	}
	return plan
}

// Dynamic reports whether the plan prices an EIP-1559 transaction
func (p *GasPlan) Dynamic() bool {
	return p.GasTipCap != nil
}

// Bump raises the fee cap (and tip, when dynamic) by 20% for the next
// attempt. Called only when the node rejected the previous price.
func (p *GasPlan) Bump() {
	p.GasFeeCap = scale(p.GasFeeCap, 120, 100)
	if p.GasTipCap != nil {
		p.GasTipCap = scale(p.GasTipCap, 120, 100)
	}
}

func scale(v *big.Int, num, den int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(num))
	return out.Div(out, big.NewInt(den))
}
