// Package match scores (volunteer, request) pairs. The score is a weighted
// sum of language, expertise, rating, responsiveness and load components,
// boosted for reputable users and urgent requests, clamped to [0,1].
package match

import (
	"time"

	"github.com/voluntr/engine/core/model"
)

// responseTimeCap is the first-response time beyond which the responsiveness
// component bottoms out at zero.
const responseTimeCap = 5 * time.Minute

// Config holds the scoring weights and acceptance threshold.
type Config struct {
	LanguageWeight     float64 `json:"language_weight"`
	ExpertiseWeight    float64 `json:"expertise_weight"`
	RatingWeight       float64 `json:"rating_weight"`
	ResponseTimeWeight float64 `json:"response_time_weight"`
	LoadWeight         float64 `json:"load_weight"`
	UserScoreBoost     bool    `json:"user_score_boost"`
	MinAcceptScore     float64 `json:"min_accept_score"`
}

// DefaultConfig returns the standard weights.
func DefaultConfig() Config {
	return Config{
		LanguageWeight:     0.30,
		ExpertiseWeight:    0.25,
		RatingWeight:       0.20,
		ResponseTimeWeight: 0.15,
		LoadWeight:         0.10,
		UserScoreBoost:     true,
		MinAcceptScore:     0.3,
	}
}

// Scorer computes match scores with a fixed configuration.
type Scorer struct {
	cfg Config
}

// NewScorer returns a scorer for the given configuration.
func NewScorer(cfg Config) Scorer { return Scorer{cfg: cfg} }

// Score returns the match quality of the volunteer for the request in [0,1].
func (s Scorer) Score(v model.Volunteer, req model.SupportRequest) float64 {
	score := s.base(v, req)

	// Boosts apply in order; the user-score boost first, then exactly one
	// priority boost. The result is clamped to 1.
	if s.cfg.UserScoreBoost && req.UserScore >= 80 {
		score *= 1.2
	}
	switch req.Priority {
	case model.PriorityUrgent:
		score *= 1.5
	case model.PriorityHigh:
		score *= 1.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Acceptable reports whether the score clears the minimum-acceptance
// threshold. This is a hard cutoff, not a preference.
func (s Scorer) Acceptable(score float64) bool {
	return score >= s.cfg.MinAcceptScore
}

func (s Scorer) base(v model.Volunteer, req model.SupportRequest) float64 {
	var language, expertise float64
	if v.SpeaksLanguage(req.Language) {
		language = 1
	}
	if v.HasExpertise(req.Category) {
		expertise = 1
	}

	rating := v.Rating / 5

	response := 1 - v.AvgResponseTime/responseTimeCap.Seconds()
	if response < 0 {
		response = 0
	}

	load := 0.0
	if v.MaxConcurrentSessions > 0 {
		load = 1 - float64(v.Load())/float64(v.MaxConcurrentSessions)
		if load < 0 {
			load = 0
		}
	}

	return language*s.cfg.LanguageWeight +
		expertise*s.cfg.ExpertiseWeight +
		rating*s.cfg.RatingWeight +
		response*s.cfg.ResponseTimeWeight +
		load*s.cfg.LoadWeight
}
