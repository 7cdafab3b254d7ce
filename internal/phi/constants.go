// Package phi provides the simulation's numeric constants derived from the golden ratio.
// Tier scaling, learning rates and price bounds all trace back to Φ.
package phi

import "math"

// Phi is the golden ratio.
const Phi = 1.6180339887498948

// TierRatio is the multiplicative step between adjacent desire tiers.
// One unit at tier t+1 is worth TierRatio units at tier t.
const TierRatio = Phi

// MaxTier bounds tier arithmetic. Tiers beyond ±MaxTier are clamped.
const MaxTier = 512

// Epsilon is the tolerance used when checking ledger identities.
const Epsilon = 1e-9

// Derived rates.
var (
	// Agnosis (Φ⁻³): decay applied to a success rate after a failed offer.
	Agnosis = math.Pow(Phi, -3) // 0.23606...

	// Psyche (Φ⁻²): boost applied after a successful offer; price smoothing.
	Psyche = math.Pow(Phi, -2) // 0.38197...

	// Matter (Φ⁻¹): the fraction that persists through transformation.
	Matter = math.Pow(Phi, -1) // 0.61803...

	// Totality (Φ³): price ceiling as a multiple of base value.
	Totality = math.Pow(Phi, 3) // 4.23606...
)

// MinSuccessRate keeps a seller's reputation from collapsing to zero.
const MinSuccessRate = 0.05
