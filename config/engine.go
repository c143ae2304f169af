package config

import (
	"fmt"
	"time"

	"github.com/voluntr/engine/core/incentive"
	"github.com/voluntr/engine/core/match"
	"github.com/voluntr/engine/core/session"
	"github.com/voluntr/engine/core/sweeper"
)

// RoutingConfig shapes volunteer selection and the reassignment sweeps.
type RoutingConfig struct {
	LanguageWeight       float64 `json:"language_weight"`
	ExpertiseWeight      float64 `json:"expertise_weight"`
	RatingWeight         float64 `json:"rating_weight"`
	ResponseTimeWeight   float64 `json:"response_time_weight"`
	LoadWeight           float64 `json:"load_weight"`
	UserScoreBoost       *bool   `json:"user_score_boost"`
	MinAcceptScore       float64 `json:"min_accept_score"`
	MaxWaitTimeMinutes   int     `json:"max_wait_time_minutes"`
	DirectoryTTLSeconds  int     `json:"directory_ttl_seconds"`
	SweepIntervalSeconds int     `json:"sweep_interval_seconds"`
}

// SetDefaults fills zero values with the standard parameters.
func (c *RoutingConfig) SetDefaults() {
	def := match.DefaultConfig()
	if c.LanguageWeight == 0 && c.ExpertiseWeight == 0 && c.RatingWeight == 0 &&
		c.ResponseTimeWeight == 0 && c.LoadWeight == 0 {
		c.LanguageWeight = def.LanguageWeight
		c.ExpertiseWeight = def.ExpertiseWeight
		c.RatingWeight = def.RatingWeight
		c.ResponseTimeWeight = def.ResponseTimeWeight
		c.LoadWeight = def.LoadWeight
	}
	if c.UserScoreBoost == nil {
		b := def.UserScoreBoost
		c.UserScoreBoost = &b
	}
	if c.MinAcceptScore == 0 {
		c.MinAcceptScore = def.MinAcceptScore
	}
	if c.MaxWaitTimeMinutes == 0 {
		c.MaxWaitTimeMinutes = 5
	}
	if c.DirectoryTTLSeconds == 0 {
		c.DirectoryTTLSeconds = 60
	}
	if c.SweepIntervalSeconds == 0 {
		c.SweepIntervalSeconds = 60
	}
}

// Validate rejects weight sets that cannot produce a meaningful score.
func (c *RoutingConfig) Validate() error {
	sum := c.LanguageWeight + c.ExpertiseWeight + c.RatingWeight +
		c.ResponseTimeWeight + c.LoadWeight
	if sum <= 0 {
		return fmt.Errorf("routing: scoring weights must sum to a positive value")
	}
	for name, w := range map[string]float64{
		"language_weight":      c.LanguageWeight,
		"expertise_weight":     c.ExpertiseWeight,
		"rating_weight":        c.RatingWeight,
		"response_time_weight": c.ResponseTimeWeight,
		"load_weight":          c.LoadWeight,
	} {
		if w < 0 {
			return fmt.Errorf("routing: %s must not be negative", name)
		}
	}
	if c.MinAcceptScore < 0 || c.MinAcceptScore > 1 {
		return fmt.Errorf("routing: min_accept_score must be within [0,1]")
	}
	if c.MaxWaitTimeMinutes < 1 {
		return fmt.Errorf("routing: max_wait_time_minutes must be at least 1")
	}
	return nil
}

// MatchConfig converts to the scorer configuration.
func (c *RoutingConfig) MatchConfig() match.Config {
	return match.Config{
		LanguageWeight:     c.LanguageWeight,
		ExpertiseWeight:    c.ExpertiseWeight,
		RatingWeight:       c.RatingWeight,
		ResponseTimeWeight: c.ResponseTimeWeight,
		LoadWeight:         c.LoadWeight,
		UserScoreBoost:     c.UserScoreBoost == nil || *c.UserScoreBoost,
		MinAcceptScore:     c.MinAcceptScore,
	}
}

// SweeperConfig converts to the sweeper configuration.
func (c *RoutingConfig) SweeperConfig() sweeper.Config {
	return sweeper.Config{
		Interval:    time.Duration(c.SweepIntervalSeconds) * time.Second,
		MaxWaitTime: time.Duration(c.MaxWaitTimeMinutes) * time.Minute,
	}
}

// DirectoryTTL returns the directory snapshot time-to-live.
func (c *RoutingConfig) DirectoryTTL() time.Duration {
	return time.Duration(c.DirectoryTTLSeconds) * time.Second
}

// SessionConfig shapes session lifecycle and the PoP reward.
type SessionConfig struct {
	SessionTimeoutMinutes int     `json:"session_timeout_minutes"`
	MaxMessageLength      int     `json:"max_message_length"`
	MinPopPoints          float64 `json:"min_pop_points"`
	MaxPopPoints          float64 `json:"max_pop_points"`
	BasePopPoints         float64 `json:"base_pop_points"`
	RatingMultiplier      float64 `json:"rating_multiplier"`
}

// SetDefaults fills zero values with the standard parameters.
func (c *SessionConfig) SetDefaults() {
	if c.SessionTimeoutMinutes == 0 {
		c.SessionTimeoutMinutes = 30
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = 2000
	}
	def := incentive.DefaultConfig()
	if c.MinPopPoints == 0 {
		c.MinPopPoints = def.MinPopPoints
	}
	if c.MaxPopPoints == 0 {
		c.MaxPopPoints = def.MaxPopPoints
	}
	if c.BasePopPoints == 0 {
		c.BasePopPoints = def.BasePopPoints
	}
	if c.RatingMultiplier == 0 {
		c.RatingMultiplier = def.RatingMultiplier
	}
}

// Validate rejects inconsistent reward bounds.
func (c *SessionConfig) Validate() error {
	if c.SessionTimeoutMinutes < 1 {
		return fmt.Errorf("session: session_timeout_minutes must be at least 1")
	}
	if c.MaxMessageLength < 1 {
		return fmt.Errorf("session: max_message_length must be at least 1")
	}
	if c.MinPopPoints > c.MaxPopPoints {
		return fmt.Errorf("session: min_pop_points must not exceed max_pop_points")
	}
	if c.BasePopPoints < c.MinPopPoints || c.BasePopPoints > c.MaxPopPoints {
		return fmt.Errorf("session: base_pop_points must lie within [min_pop_points, max_pop_points]")
	}
	return nil
}

// ManagerConfig converts to the session manager configuration.
func (c *SessionConfig) ManagerConfig() session.Config {
	return session.Config{
		Timeout:          time.Duration(c.SessionTimeoutMinutes) * time.Minute,
		MaxMessageLength: c.MaxMessageLength,
	}
}

// IncentiveConfig converts to the reward calculator configuration.
func (c *SessionConfig) IncentiveConfig() incentive.Config {
	return incentive.Config{
		MinPopPoints:     c.MinPopPoints,
		MaxPopPoints:     c.MaxPopPoints,
		BasePopPoints:    c.BasePopPoints,
		RatingMultiplier: c.RatingMultiplier,
	}
}
