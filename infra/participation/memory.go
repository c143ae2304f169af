package participation

import (
	"context"
	"sync"
)

// MemoryOracle keeps scores in process memory.
type MemoryOracle struct {
	mu      sync.RWMutex
	scores  map[string]float64
	support map[string]float64

	// Fail, when set, is returned by UpdateSupportScore so tests can
	// exercise the best-effort crediting path.
	Fail error
}

// NewMemoryOracle creates an empty oracle.
func NewMemoryOracle() *MemoryOracle {
	return &MemoryOracle{
		scores:  make(map[string]float64),
		support: make(map[string]float64),
	}
}

// SetUserScore seeds a user reputation score.
func (o *MemoryOracle) SetUserScore(address string, score float64) {
	o.mu.Lock()
	o.scores[address] = score
	o.mu.Unlock()
}

// GetUserScore returns the stored score, 0 when absent.
func (o *MemoryOracle) GetUserScore(ctx context.Context, address string) (float64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scores[address], nil
}

// UpdateSupportScore credits PoP points.
func (o *MemoryOracle) UpdateSupportScore(ctx context.Context, address string, points float64) error {
	if o.Fail != nil {
		return o.Fail
	}
	o.mu.Lock()
	o.support[address] += points
	o.mu.Unlock()
	return nil
}

// SupportScore returns the credited total for a volunteer, for tests.
func (o *MemoryOracle) SupportScore(address string) float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.support[address]
}
