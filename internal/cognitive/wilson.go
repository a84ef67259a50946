package cognitive

import "math"

// wilsonZ95 is the z-score for a 95% confidence interval, the conventional
// default for a Wilson-lower-bound used as a conservative reliability
// estimate.
const wilsonZ95 = 1.959963984540054

// WilsonLowerBound computes the lower bound of the Wilson score confidence
// interval for a proportion of successes over n trials. It is the
// standard closed-form correction for small-sample reliability estimates:
// unlike the raw success rate, it is pulled down sharply when trials are
// few, so a brand-new insight with 1/1 validations reads about 0.21 rather
// than "100% reliable".
func WilsonLowerBound(successes, trials int64) float64 {
	if trials <= 0 {
		return 0
	}
	n := float64(trials)
	p := float64(successes) / n
	z := wilsonZ95
	z2 := z * z

	denom := 1 + z2/n
	center := p + z2/(2*n)
	margin := z * math.Sqrt((p*(1-p)+z2/(4*n))/n)

	lower := (center - margin) / denom
	if lower < 0 {
		return 0
	}
	if lower > 1 {
		return 1
	}
	return lower
}
