// Package gate implements the confidence policy deciding whether a finished
// parse is trusted enough to finalize automatically.
package gate

// DefaultThreshold is the confidence below which imports go to manual review.
const DefaultThreshold = 0.7

// Gate evaluates the overall parse confidence against a threshold.
// Per-line confidence never participates in the decision; only the overall
// statement score gates the outcome.
type Gate struct {
	threshold float64
}

// New creates a gate with the given threshold; non-positive values fall back
// to DefaultThreshold.
func New(threshold float64) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{threshold: threshold}
}

// ShouldFinalize reports whether a parse with the given overall confidence
// may complete automatically. Anything below the threshold is routed to
// manual review regardless of how the individual lines fared.
func (g *Gate) ShouldFinalize(confidence float64) bool {
	return confidence >= g.threshold
}

// Threshold returns the configured threshold.
func (g *Gate) Threshold() float64 {
	return g.threshold
}
