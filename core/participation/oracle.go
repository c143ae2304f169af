// Package participation declares the reputation oracle consumed by the
// engine. Crediting support points through it is best-effort bookkeeping;
// reading user scores feeds the routing boost.
package participation

import "context"

// Oracle exposes the platform-wide participation ledger.
type Oracle interface {
	// GetUserScore returns the reputation snapshot for a user address.
	GetUserScore(ctx context.Context, address string) (float64, error)
	// UpdateSupportScore credits PoP points to a volunteer.
	UpdateSupportScore(ctx context.Context, address string, points float64) error
}
