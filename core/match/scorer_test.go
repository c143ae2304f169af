package match

import (
	"math"
	"testing"
	"time"

	"github.com/voluntr/engine/core/model"
)

func testVolunteer() model.Volunteer {
	return model.Volunteer{
		Address:               "vol-1",
		Status:                model.VolunteerAvailable,
		Languages:             []string{"fr", "en"},
		ExpertiseCategories:   []model.Category{model.CategoryTrading},
		Rating:                4.0,
		AvgResponseTime:       150,
		MaxConcurrentSessions: 4,
		ActiveSessions:        []string{"s1"},
	}
}

func testRequest() model.SupportRequest {
	return model.SupportRequest{
		RequestID:      "req-1",
		UserAddress:    "user-1",
		Category:       model.CategoryTrading,
		Priority:       model.PriorityMedium,
		InitialMessage: "need help with a stuck order",
		Language:       "fr",
		Timestamp:      time.Now(),
	}
}

func TestScoreComponents(t *testing.T) {
	s := NewScorer(DefaultConfig())
	v := testVolunteer()
	req := testRequest()

	// language 1*0.30, expertise 1*0.25, rating 4/5*0.20,
	// response (1-150/300)*0.15, load (1-1/4)*0.10
	want := 0.30 + 0.25 + 0.16 + 0.075 + 0.075
	got := s.Score(v, req)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", got, want)
	}
}

func TestScoreMismatchedComponentsDropOut(t *testing.T) {
	s := NewScorer(DefaultConfig())
	v := testVolunteer()
	req := testRequest()
	req.Language = "de"
	req.Category = model.CategoryWallet

	want := 0.16 + 0.075 + 0.075
	got := s.Score(v, req)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", got, want)
	}
}

func TestScoreBoosts(t *testing.T) {
	s := NewScorer(DefaultConfig())
	v := testVolunteer()
	base := s.Score(v, testRequest())

	tests := []struct {
		name      string
		userScore float64
		priority  model.Priority
		want      float64
	}{
		{"reputable user", 85, model.PriorityMedium, base * 1.2},
		{"user score below threshold", 79, model.PriorityMedium, base},
		{"high priority", 0, model.PriorityHigh, base * 1.2},
		{"urgent priority", 0, model.PriorityUrgent, base * 1.5},
		{"both boosts compound", 90, model.PriorityUrgent, base * 1.2 * 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			req.UserScore = tt.userScore
			req.Priority = tt.priority
			want := tt.want
			if want > 1 {
				want = 1
			}
			got := s.Score(v, req)
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("score = %v, want %v", got, want)
			}
		})
	}
}

func TestScoreClampedToOne(t *testing.T) {
	s := NewScorer(DefaultConfig())
	v := testVolunteer()
	v.Rating = 5
	v.AvgResponseTime = 0
	v.ActiveSessions = nil
	req := testRequest()
	req.UserScore = 100
	req.Priority = model.PriorityUrgent

	if got := s.Score(v, req); got != 1 {
		t.Fatalf("score = %v, want clamp to 1", got)
	}
}

func TestScoreUserBoostDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UserScoreBoost = false
	s := NewScorer(cfg)
	v := testVolunteer()

	req := testRequest()
	base := s.Score(v, req)
	req.UserScore = 95
	if got := s.Score(v, req); got != base {
		t.Fatalf("score = %v, want %v with boost disabled", got, base)
	}
}

func TestScoreResponseTimeBottomsOut(t *testing.T) {
	s := NewScorer(DefaultConfig())
	v := testVolunteer()
	v.AvgResponseTime = 900 // far beyond the cap

	req := testRequest()
	want := 0.30 + 0.25 + 0.16 + 0 + 0.075
	got := s.Score(v, req)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", got, want)
	}
}

func TestScoreFullyLoadedVolunteer(t *testing.T) {
	s := NewScorer(DefaultConfig())
	v := testVolunteer()
	v.ActiveSessions = []string{"s1", "s2", "s3", "s4"}

	req := testRequest()
	want := 0.30 + 0.25 + 0.16 + 0.075 + 0
	got := s.Score(v, req)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", got, want)
	}
}

func TestAcceptable(t *testing.T) {
	s := NewScorer(DefaultConfig())
	if s.Acceptable(0.29) {
		t.Fatal("0.29 should be below the acceptance threshold")
	}
	if !s.Acceptable(0.3) {
		t.Fatal("0.3 should meet the acceptance threshold")
	}
}
