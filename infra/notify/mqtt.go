// Package notify delivers volunteer notifications. The MQTT hook publishes
// to a per-volunteer topic; the log hook is the fallback when no broker is
// configured.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/voluntr/engine/core/errs"
	"github.com/voluntr/engine/core/logger"
	"github.com/voluntr/engine/core/model"
)

// Config holds the MQTT connection settings.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TopicPrefix defaults to "voluntr/notify".
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "voluntr-engine"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "voluntr/notify"
	}
}

// assignmentPayload is the JSON body published to the volunteer's topic.
type assignmentPayload struct {
	SessionID   string `json:"session_id"`
	RequestID   string `json:"request_id"`
	UserAddress string `json:"user_address"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Language    string `json:"language"`
	AssignedAt  string `json:"assigned_at"`
}

// MQTTHook publishes assignment notifications over MQTT.
type MQTTHook struct {
	client mqtt.Client
	cfg    Config
	log    logger.Logger
}

// NewMQTTHook connects to the broker.
func NewMQTTHook(cfg Config, log logger.Logger) (*MQTTHook, error) {
	cfg.SetDefaults()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errs.Transient("mqtt connect", fmt.Errorf("timeout connecting to %s", cfg.Broker))
	}
	if err := token.Error(); err != nil {
		return nil, errs.Transient("mqtt connect", err)
	}
	return &MQTTHook{client: client, cfg: cfg, log: log}, nil
}

// Close disconnects from the broker.
func (h *MQTTHook) Close() {
	h.client.Disconnect(250)
}

// NotifyVolunteer publishes the assignment to the volunteer's topic.
// Delivery is fire-and-forget: failures are logged, never returned.
func (h *MQTTHook) NotifyVolunteer(v model.Volunteer, s *model.Session) {
	payload := assignmentPayload{
		SessionID:   s.SessionID,
		RequestID:   s.Request.RequestID,
		UserAddress: s.Request.UserAddress,
		Category:    string(s.Request.Category),
		Priority:    string(s.Request.Priority),
		Language:    s.Request.Language,
	}
	if s.AssignmentTime != nil {
		payload.AssignedAt = s.AssignmentTime.Format(time.RFC3339)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorf("notify marshal for %s: %v", v.Address, err)
		return
	}
	topic := fmt.Sprintf("%s/volunteer/%s", h.cfg.TopicPrefix, v.Address)
	token := h.client.Publish(topic, h.cfg.QoS, false, body)
	if !token.WaitTimeout(5 * time.Second) {
		h.log.Warnf("notify publish to %s timed out", topic)
		return
	}
	if err := token.Error(); err != nil {
		h.log.Errorf("notify publish to %s: %v", topic, err)
	}
}

// LogHook records notifications in the log only.
type LogHook struct {
	Log logger.Logger
}

// NotifyVolunteer logs the assignment.
func (h LogHook) NotifyVolunteer(v model.Volunteer, s *model.Session) {
	h.Log.Infof("session %s assigned to volunteer %s", s.SessionID, v.Address)
}
