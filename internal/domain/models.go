package domain

import "time"

// User is a read-only projection of the portal's users collection. The
// identity service owns the collection; chat only needs display data to
// expand sender/recipient references.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Attachment describes a file reference carried by a message. The file
// itself lives under the upload directory and is served over HTTP.
type Attachment struct {
	URL  string `bson:"url" json:"url"`
	Name string `bson:"name" json:"name"`
	Type string `bson:"type" json:"type"`
	Size int64  `bson:"size" json:"size"`
}

// Message is a single direct message between two users.
type Message struct {
	ID              string
	ConversationKey string
	SenderID        string
	RecipientID     string
	Body            string
	Attachments     []Attachment
	Read            bool
	// DeletedFor holds user IDs that chose "delete for me"; the message
	// stays visible to the other participant.
	DeletedFor         []string
	DeletedForEveryone bool
	CreatedAt          time.Time
}

// HiddenFrom reports whether the given user removed this message from
// their own view.
func (m *Message) HiddenFrom(userID string) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID.
func (m *Message) OtherParticipant(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// Involves reports whether userID is the sender or the recipient.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// ConversationSummary is the read-time aggregation shown in a user's
// conversation list. Conversations are never stored as their own
// documents; they are derived from messages grouped by conversation key.
type ConversationSummary struct {
	ConversationKey string
	LastMessage     *Message
	OtherUser       *User
	UnreadCount     int64
}
