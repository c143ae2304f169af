package model

import "time"

// MessageType discriminates chat message payloads.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageImage       MessageType = "image"
	MessageFile        MessageType = "file"
	MessageVoice       MessageType = "voice"
	MessageArticleLink MessageType = "article_link"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageVoice, MessageArticleLink:
		return true
	}
	return false
}

// Attachment describes an out-of-band payload referenced by a chat message.
type Attachment struct {
	Name      string
	URL       string
	MimeType  string
	SizeBytes int64
}

// ChatMessage is a single entry in a session transcript. The sender is always
// either the requesting user or the assigned volunteer.
type ChatMessage struct {
	MessageID     string
	SenderAddress string
	Content       string
	Timestamp     time.Time
	Type          MessageType
	Attachment    *Attachment
}
