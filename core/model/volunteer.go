package model

import (
	"fmt"
	"time"
)

// VolunteerStatus describes the presence state of a volunteer agent.
type VolunteerStatus string

const (
	VolunteerOffline   VolunteerStatus = "offline"
	VolunteerAvailable VolunteerStatus = "available"
	VolunteerBusy      VolunteerStatus = "busy"
	VolunteerAway      VolunteerStatus = "away"
)

// Category identifies a support expertise area.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryTrading    Category = "trading"
	CategoryWallet     Category = "wallet"
	CategoryTechnical  Category = "technical"
	CategoryAccount    Category = "account"
	CategoryGovernance Category = "governance"
)

// Volunteer represents a human agent that can be matched to support requests.
type Volunteer struct {
	Address             string
	DisplayName         string
	Status              VolunteerStatus
	Languages           []string
	ExpertiseCategories []Category
	Rating              float64 // average user rating between 0 and 5
	TotalSessions       int
	AvgResponseTime     float64 // seconds until first reply
	AvgResolutionTime   float64 // minutes until resolution
	ParticipationScore  float64
	LastActive          time.Time

	// ActiveSessions holds the ids of sessions currently assigned to the
	// volunteer. Its length never exceeds MaxConcurrentSessions.
	ActiveSessions        []string
	MaxConcurrentSessions int
}

// Validate checks that the volunteer record is sound.
func (v Volunteer) Validate() error {
	if v.Address == "" {
		return fmt.Errorf("volunteer address is required")
	}
	if v.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max concurrent sessions must be at least 1")
	}
	if v.Rating < 0 || v.Rating > 5 {
		return fmt.Errorf("rating %v outside [0,5]", v.Rating)
	}
	return nil
}

// Load returns the number of sessions currently assigned to the volunteer.
func (v Volunteer) Load() int { return len(v.ActiveSessions) }

// HasCapacity reports whether the volunteer can take one more session.
func (v Volunteer) HasCapacity() bool {
	return len(v.ActiveSessions) < v.MaxConcurrentSessions
}

// SpeaksLanguage reports whether lang is among the volunteer's languages.
func (v Volunteer) SpeaksLanguage(lang string) bool {
	for _, l := range v.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// HasExpertise reports whether the volunteer covers the given category.
func (v Volunteer) HasExpertise(cat Category) bool {
	for _, c := range v.ExpertiseCategories {
		if c == cat {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshot readers never share slices with the
// directory refresher.
func (v Volunteer) Clone() Volunteer {
	cp := v
	cp.Languages = append([]string(nil), v.Languages...)
	cp.ExpertiseCategories = append([]Category(nil), v.ExpertiseCategories...)
	cp.ActiveSessions = append([]string(nil), v.ActiveSessions...)
	return cp
}
