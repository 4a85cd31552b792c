package sim

import (
	"fmt"
	"math"
)

// maxFunctionReleasePeriods bounds FunctionRelease when the function never
// releases the whole stored amount.
const maxFunctionReleasePeriods = 500

// Release describes when material stored in a stock leaves it again.
//
// rates[0] is the share of a period's inflow that flows on immediately;
// rates[i] is the share released i periods after the material entered.
type Release struct {
	rates []float64
	desc  string
}

// ListRelease releases the given shares in consecutive periods after an
// optional delay.
func ListRelease(rates []float64, delay int) (*Release, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("list release needs at least one rate")
	}
	r, err := newRelease(rates, delay)
	if err != nil {
		return nil, err
	}
	r.desc = fmt.Sprintf("ListRelease (rates: %v, delay: %d)", rates, delay)
	return r, nil
}

// FixedRateRelease releases a constant share per period, after an optional
// delay, until everything has been released. The last share is the remainder.
func FixedRateRelease(rate float64, delay int) (*Release, error) {
	if !(rate > 0 && rate <= 1) {
		return nil, fmt.Errorf("fixed release rate must be in (0, 1], got %g", rate)
	}
	var rates []float64
	for remainder := 1.0; remainder > 1e-12; remainder -= rate {
		rates = append(rates, math.Min(rate, remainder))
	}
	r, err := newRelease(rates, delay)
	if err != nil {
		return nil, err
	}
	r.desc = fmt.Sprintf("FixedRateRelease (rate: %g, delay: %d)", rate, delay)
	return r, nil
}

// FunctionRelease builds the release plan from fn(k), the share released k
// periods after storage (k = 0 is the immediate release). Shares are
// collected until they reach one or the period bound; trailing zeros are
// dropped and an overshoot is taken off the last share.
func FunctionRelease(fn func(period int) float64, delay int) (*Release, error) {
	var rates []float64
	total := 0.0
	lastNonZero := 0
	for k := 0; total < 1 && k < maxFunctionReleasePeriods; k++ {
		v := fn(k)
		if v != 0 {
			lastNonZero = k
		}
		rates = append(rates, v)
		total += v
	}
	rates = rates[:lastNonZero+1]
	if total > 1 {
		rates[len(rates)-1] += 1 - total
	}
	r, err := newRelease(rates, delay)
	if err != nil {
		return nil, err
	}
	r.desc = fmt.Sprintf("FunctionRelease (periods: %d, delay: %d)", len(rates), delay)
	return r, nil
}

func newRelease(rates []float64, delay int) (*Release, error) {
	if delay < 0 {
		return nil, fmt.Errorf("release delay must be non-negative, got %d", delay)
	}
	for i, v := range rates {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("release rate %d must be a non-negative finite number, got %g", i, v)
		}
	}
	all := make([]float64, delay, delay+len(rates))
	all = append(all, rates...)
	if all[0] > 1 {
		return nil, fmt.Errorf("immediate release rate must not exceed 1, got %g", all[0])
	}
	return &Release{rates: all}, nil
}

// Rates returns a copy of the release plan including leading delay periods.
func (r *Release) Rates() []float64 {
	out := make([]float64, len(r.rates))
	copy(out, r.rates)
	return out
}

// ImmediateRate is the share of a period's inflow leaving the stock at once.
func (r *Release) ImmediateRate() float64 { return r.rates[0] }

func (r *Release) String() string { return r.desc }

// schedule books the future releases of amount, stored in period, onto the
// run's release row. Each share is capped by what has not been released yet.
func (r *Release) schedule(row []float64, period int, amount float64) {
	remainder := 1 - r.rates[0]
	for i, p := 1, period+1; p < len(row) && i < len(r.rates); i, p = i+1, p+1 {
		share := math.Min(r.rates[i], remainder)
		row[p] += amount * share
		remainder -= share
	}
}
