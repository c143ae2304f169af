// Package incentive derives the bounded PoP reward for a completed, rated
// session and credits it to the participation oracle.
package incentive

import (
	"context"
	"time"

	"github.com/voluntr/engine/core/logger"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/participation"
)

// quickResolution is the resolution latency rewarded with a bonus point.
const quickResolution = 10 * time.Minute

// thoroughnessThreshold is the transcript length rewarded with a half point.
const thoroughnessThreshold = 10

// Config bounds and shapes the reward.
type Config struct {
	MinPopPoints     float64 `json:"min_pop_points"`
	MaxPopPoints     float64 `json:"max_pop_points"`
	BasePopPoints    float64 `json:"base_pop_points"`
	RatingMultiplier float64 `json:"rating_multiplier"`
}

// DefaultConfig returns the standard reward parameters.
func DefaultConfig() Config {
	return Config{
		MinPopPoints:     2,
		MaxPopPoints:     7,
		BasePopPoints:    3,
		RatingMultiplier: 0.5,
	}
}

// Calculator computes and credits session rewards.
type Calculator struct {
	cfg    Config
	oracle participation.Oracle
	log    logger.Logger
}

// New returns a calculator. The oracle may be nil, in which case crediting
// is skipped.
func New(cfg Config, oracle participation.Oracle, log logger.Logger) *Calculator {
	return &Calculator{cfg: cfg, oracle: oracle, log: log}
}

// CalculatePoints derives the reward for a session rated with the given
// value. The result is always within [MinPopPoints, MaxPopPoints].
func (c *Calculator) CalculatePoints(s *model.Session, rating int) float64 {
	points := c.cfg.BasePopPoints
	if rating >= 4 {
		points += float64(rating-3) * c.cfg.RatingMultiplier
	}
	if s.AssignmentTime != nil && s.ResolutionTime != nil &&
		s.ResolutionTime.Sub(*s.AssignmentTime) < quickResolution {
		points++
	}
	if len(s.Messages) > thoroughnessThreshold {
		points += 0.5
	}
	if points < c.cfg.MinPopPoints {
		points = c.cfg.MinPopPoints
	}
	if points > c.cfg.MaxPopPoints {
		points = c.cfg.MaxPopPoints
	}
	return points
}

// Credit reports the points to the participation oracle. Crediting is
// best-effort, non-authoritative bookkeeping: failures are logged and never
// propagate into the rating operation.
func (c *Calculator) Credit(ctx context.Context, address string, points float64) {
	if c.oracle == nil || address == "" {
		return
	}
	if err := c.oracle.UpdateSupportScore(ctx, address, points); err != nil {
		c.log.Errorf("participation credit for %s failed: %v", address, err)
	}
}
