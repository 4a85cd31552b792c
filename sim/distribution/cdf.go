package distribution

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// CDF is a cumulative distribution function.
type CDF interface {
	CDF(x float64) float64
}

// NewCDF returns the cumulative distribution function described by spec.
// Only continuous types with a closed support on [0, inf) or a bounded
// support make sense as product lifetimes, but any continuous type is accepted.
func NewCDF(spec Spec) (CDF, error) {
	p := spec.Params
	switch spec.Type {
	case "uniform":
		if err := requireParam(p, "min", "max"); err != nil {
			return nil, err
		}
		if p["min"] >= p["max"] {
			return nil, fmt.Errorf("uniform requires min < max, got %g >= %g", p["min"], p["max"])
		}
		return distuv.Uniform{Min: p["min"], Max: p["max"]}, nil
	case "triangular":
		if err := requireParam(p, "min", "mode", "max"); err != nil {
			return nil, err
		}
		if !(p["min"] <= p["mode"] && p["mode"] <= p["max"] && p["min"] < p["max"]) {
			return nil, fmt.Errorf("triangular requires min <= mode <= max and min < max")
		}
		return distuv.NewTriangle(p["min"], p["max"], p["mode"], nil), nil
	case "normal":
		if err := requireParam(p, "mean", "std_dev"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "std_dev"); err != nil {
			return nil, err
		}
		return distuv.Normal{Mu: p["mean"], Sigma: p["std_dev"]}, nil
	case "lognormal":
		if err := requireParam(p, "mu", "sigma"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "sigma"); err != nil {
			return nil, err
		}
		return distuv.LogNormal{Mu: p["mu"], Sigma: p["sigma"]}, nil
	case "gamma":
		if err := requireParam(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		return distuv.Gamma{Alpha: p["alpha"], Beta: p["beta"]}, nil
	case "weibull":
		if err := requireParam(p, "k", "lambda"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "k", "lambda"); err != nil {
			return nil, err
		}
		return distuv.Weibull{K: p["k"], Lambda: p["lambda"]}, nil
	case "exponential":
		if err := requireParam(p, "rate"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "rate"); err != nil {
			return nil, err
		}
		return distuv.Exponential{Rate: p["rate"]}, nil
	default:
		return nil, fmt.Errorf("distribution type %q has no usable CDF for lifetimes", spec.Type)
	}
}
