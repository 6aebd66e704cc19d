// Package budget holds the single predicate deciding whether the daily USD
// ceiling is spent. The scoring pipeline consults it before every document
// and the orchestrator consults it after every user; sharing one definition
// keeps the two checks from drifting apart.
package budget

// Headroom reserves room for one in-flight triage call, so a session that is
// within a tenth of a cent of the ceiling stops before, not after, crossing it.
const Headroom = 0.001

// Exceeded reports whether cumulative spend has reached the ceiling.
// A non-positive ceiling disables the guard.
func Exceeded(spentUSD, ceilingUSD float64) bool {
	if ceilingUSD <= 0 {
		return false
	}
	return spentUSD >= ceilingUSD-Headroom
}
