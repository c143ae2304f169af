package storage

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voluntr/engine/core/errs"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/store"
)

// GormStore persists the engine state in Postgres through gorm.
type GormStore struct {
	db *gorm.DB
}

type volunteerRecord struct {
	Address               string `gorm:"primaryKey"`
	DisplayName           string
	Status                string
	Languages             []string `gorm:"serializer:json"`
	Expertise             []string `gorm:"serializer:json"`
	Rating                float64
	TotalSessions         int
	AvgResponseTime       float64
	AvgResolutionTime     float64
	ParticipationScore    float64
	LastActive            time.Time
	MaxConcurrentSessions int
}

func (volunteerRecord) TableName() string { return "volunteers" }

type sessionRecord struct {
	SessionID        string `gorm:"primaryKey"`
	RequestID        string `gorm:"index"`
	UserAddress      string `gorm:"index"`
	Category         string
	Priority         string
	InitialMessage   string
	Language         string
	UserScore        float64
	RequestTime      time.Time
	Metadata         map[string]string `gorm:"serializer:json"`
	VolunteerAddress *string           `gorm:"index"`
	Status           string            `gorm:"index"`
	StartTime        time.Time
	AssignmentTime   *time.Time
	ResolutionTime   *time.Time
	UserRating       *int
	UserFeedback     string
	ResolutionNotes  string
	PopPointsAwarded float64
}

func (sessionRecord) TableName() string { return "sessions" }

type messageRecord struct {
	MessageID      string `gorm:"primaryKey"`
	SessionID      string `gorm:"index"`
	SenderAddress  string
	Content        string
	SentAt         time.Time
	Type           string
	AttachmentName string
	AttachmentURL  string
	AttachmentMime string
	AttachmentSize int64
}

func (messageRecord) TableName() string { return "messages" }

// NewGormStore opens the Postgres database and migrates the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errs.Transient("open database", err)
	}
	if err := db.AutoMigrate(&volunteerRecord{}, &sessionRecord{}, &messageRecord{}); err != nil {
		return nil, errs.Transient("migrate schema", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadVolunteers reads every volunteer and derives active session ids from
// the sessions table.
func (g *GormStore) LoadVolunteers(ctx context.Context) ([]model.Volunteer, error) {
	var recs []volunteerRecord
	if err := g.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, errs.Transient("load volunteers", err)
	}

	type activeRow struct {
		VolunteerAddress string
		SessionID        string
	}
	var rows []activeRow
	err := g.db.WithContext(ctx).
		Model(&sessionRecord{}).
		Select("volunteer_address, session_id").
		Where("status IN ? AND volunteer_address IS NOT NULL", []string{string(model.SessionAssigned), string(model.SessionActive)}).
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Transient("load active sessions", err)
	}
	active := make(map[string][]string, len(rows))
	for _, r := range rows {
		active[r.VolunteerAddress] = append(active[r.VolunteerAddress], r.SessionID)
	}

	out := make([]model.Volunteer, 0, len(recs))
	for _, r := range recs {
		out = append(out, volunteerFromRecord(r, active[r.Address]))
	}
	return out, nil
}

// SaveSession upserts the session row and its transcript in one transaction.
func (g *GormStore) SaveSession(ctx context.Context, s *model.Session) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := sessionToRecord(s)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
			return err
		}
		for _, msg := range s.Messages {
			mr := messageToRecord(s.SessionID, msg)
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&mr).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errs.Transient("save session", err)
}

// AppendMessage inserts one transcript row.
func (g *GormStore) AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) error {
	rec := messageToRecord(sessionID, msg)
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errs.Transient("append message", err)
	}
	return nil
}

// UpdateSessionStatus updates the status column plus any non-nil fields.
func (g *GormStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, fields store.SessionFields) error {
	updates := map[string]any{"status": string(status)}
	if fields.VolunteerAddress != nil {
		if *fields.VolunteerAddress == "" {
			updates["volunteer_address"] = nil
		} else {
			updates["volunteer_address"] = *fields.VolunteerAddress
		}
	}
	if fields.ClearAssignmentTime {
		updates["assignment_time"] = nil
	} else if fields.AssignmentTime != nil {
		updates["assignment_time"] = *fields.AssignmentTime
	}
	if fields.ResolutionTime != nil {
		updates["resolution_time"] = *fields.ResolutionTime
	}
	if fields.UserRating != nil {
		updates["user_rating"] = *fields.UserRating
	}
	if fields.UserFeedback != nil {
		updates["user_feedback"] = *fields.UserFeedback
	}
	if fields.ResolutionNotes != nil {
		updates["resolution_notes"] = *fields.ResolutionNotes
	}
	if fields.PopPointsAwarded != nil {
		updates["pop_points_awarded"] = *fields.PopPointsAwarded
	}
	res := g.db.WithContext(ctx).Model(&sessionRecord{}).Where("session_id = ?", sessionID).Updates(updates)
	if res.Error != nil {
		return errs.Transient("update session status", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("session", sessionID)
	}
	return nil
}

// QueryWaitingSessions returns waiting sessions ordered by priority
// descending, then start time ascending.
func (g *GormStore) QueryWaitingSessions(ctx context.Context) ([]*model.Session, error) {
	recs, err := g.querySessions(ctx, g.db.Where("status = ?", string(model.SessionWaiting)))
	if err != nil {
		return nil, errs.Transient("query waiting sessions", err)
	}
	sortWaiting(recs)
	return recs, nil
}

// QueryAssignedSessionsForVolunteer returns the open sessions held by a
// volunteer.
func (g *GormStore) QueryAssignedSessionsForVolunteer(ctx context.Context, address string) ([]*model.Session, error) {
	q := g.db.Where("volunteer_address = ? AND status IN ?", address,
		[]string{string(model.SessionAssigned), string(model.SessionActive)})
	recs, err := g.querySessions(ctx, q)
	if err != nil {
		return nil, errs.Transient("query assigned sessions", err)
	}
	return recs, nil
}

func (g *GormStore) querySessions(ctx context.Context, q *gorm.DB) ([]*model.Session, error) {
	var recs []sessionRecord
	if err := q.WithContext(ctx).Order("start_time").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Session, 0, len(recs))
	for i := range recs {
		var msgs []messageRecord
		if err := g.db.WithContext(ctx).Where("session_id = ?", recs[i].SessionID).Order("sent_at").Find(&msgs).Error; err != nil {
			return nil, err
		}
		var vol *volunteerRecord
		if recs[i].VolunteerAddress != nil {
			var vr volunteerRecord
			if err := g.db.WithContext(ctx).Where("address = ?", *recs[i].VolunteerAddress).First(&vr).Error; err == nil {
				vol = &vr
			}
		}
		out = append(out, sessionFromRecord(recs[i], msgs, vol))
	}
	return out, nil
}

func volunteerFromRecord(r volunteerRecord, activeSessions []string) model.Volunteer {
	cats := make([]model.Category, 0, len(r.Expertise))
	for _, c := range r.Expertise {
		cats = append(cats, model.Category(c))
	}
	return model.Volunteer{
		Address:               r.Address,
		DisplayName:           r.DisplayName,
		Status:                model.VolunteerStatus(r.Status),
		Languages:             append([]string(nil), r.Languages...),
		ExpertiseCategories:   cats,
		Rating:                r.Rating,
		TotalSessions:         r.TotalSessions,
		AvgResponseTime:       r.AvgResponseTime,
		AvgResolutionTime:     r.AvgResolutionTime,
		ParticipationScore:    r.ParticipationScore,
		LastActive:            r.LastActive,
		ActiveSessions:        append([]string(nil), activeSessions...),
		MaxConcurrentSessions: r.MaxConcurrentSessions,
	}
}

func sessionToRecord(s *model.Session) sessionRecord {
	rec := sessionRecord{
		SessionID:        s.SessionID,
		RequestID:        s.Request.RequestID,
		UserAddress:      s.Request.UserAddress,
		Category:         string(s.Request.Category),
		Priority:         string(s.Request.Priority),
		InitialMessage:   s.Request.InitialMessage,
		Language:         s.Request.Language,
		UserScore:        s.Request.UserScore,
		RequestTime:      s.Request.Timestamp,
		Metadata:         s.Request.Metadata,
		Status:           string(s.Status),
		StartTime:        s.StartTime,
		AssignmentTime:   s.AssignmentTime,
		ResolutionTime:   s.ResolutionTime,
		UserRating:       s.UserRating,
		UserFeedback:     s.UserFeedback,
		ResolutionNotes:  s.ResolutionNotes,
		PopPointsAwarded: s.PopPointsAwarded,
	}
	if s.Volunteer != nil {
		addr := s.Volunteer.Address
		rec.VolunteerAddress = &addr
	}
	return rec
}

func sessionFromRecord(r sessionRecord, msgs []messageRecord, vol *volunteerRecord) *model.Session {
	s := &model.Session{
		SessionID: r.SessionID,
		Request: model.SupportRequest{
			RequestID:      r.RequestID,
			UserAddress:    r.UserAddress,
			Category:       model.Category(r.Category),
			Priority:       model.Priority(r.Priority),
			InitialMessage: r.InitialMessage,
			Language:       r.Language,
			UserScore:      r.UserScore,
			Timestamp:      r.RequestTime,
			Metadata:       r.Metadata,
		},
		Status:           model.SessionStatus(r.Status),
		StartTime:        r.StartTime,
		AssignmentTime:   r.AssignmentTime,
		ResolutionTime:   r.ResolutionTime,
		UserRating:       r.UserRating,
		UserFeedback:     r.UserFeedback,
		ResolutionNotes:  r.ResolutionNotes,
		PopPointsAwarded: r.PopPointsAwarded,
	}
	if vol != nil {
		v := volunteerFromRecord(*vol, nil)
		s.Volunteer = &v
	} else if r.VolunteerAddress != nil {
		s.Volunteer = &model.Volunteer{Address: *r.VolunteerAddress}
	}
	for _, mr := range msgs {
		s.Messages = append(s.Messages, messageFromRecord(mr))
	}
	return s
}

func messageToRecord(sessionID string, m model.ChatMessage) messageRecord {
	rec := messageRecord{
		MessageID:     m.MessageID,
		SessionID:     sessionID,
		SenderAddress: m.SenderAddress,
		Content:       m.Content,
		SentAt:        m.Timestamp,
		Type:          string(m.Type),
	}
	if m.Attachment != nil {
		rec.AttachmentName = m.Attachment.Name
		rec.AttachmentURL = m.Attachment.URL
		rec.AttachmentMime = m.Attachment.MimeType
		rec.AttachmentSize = m.Attachment.SizeBytes
	}
	return rec
}

func messageFromRecord(r messageRecord) model.ChatMessage {
	m := model.ChatMessage{
		MessageID:     r.MessageID,
		SenderAddress: r.SenderAddress,
		Content:       r.Content,
		Timestamp:     r.SentAt,
		Type:          model.MessageType(r.Type),
	}
	if r.AttachmentURL != "" || r.AttachmentName != "" {
		m.Attachment = &model.Attachment{
			Name:      r.AttachmentName,
			URL:       r.AttachmentURL,
			MimeType:  r.AttachmentMime,
			SizeBytes: r.AttachmentSize,
		}
	}
	return m
}
