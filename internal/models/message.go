package models

import "time"

// Author sentinels used alongside persona ids in Message.AuthorID.
const (
	AuthorUser   = "user"
	AuthorSystem = "system"
)

// Message is a single entry in the append-only chat history. Messages are
// never mutated after delivery except for the one-shot resonance transition
// (LikedByUser false -> true, Likes incremented once).
type Message struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"authorId"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	Likes          int       `json:"likes"`
	LikedByUser    bool      `json:"likedByUser"`
	SkillActivated string    `json:"skillActivated,omitempty"`
	SkillText      string    `json:"skillText,omitempty"`
}

// FromPersona reports whether the message was authored by a cabinet persona
// rather than the user or the system narrator.
func (m Message) FromPersona() bool {
	return m.AuthorID != AuthorUser && m.AuthorID != AuthorSystem
}
