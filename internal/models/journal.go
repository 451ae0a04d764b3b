package models

import "time"

// JournalReaction is a single persona comment attached to a journal entry.
// IsProbe marks reactions that interrogate a tendency rather than comment
// on the entry itself.
type JournalReaction struct {
	PersonaID string `json:"personaId" bson:"persona_id"`
	Text      string `json:"text" bson:"text"`
	IsProbe   bool   `json:"isProbe" bson:"is_probe"`
}

// JournalEntry is an analyzed free-text entry. Entries are immutable once
// created by a successful analysis.
type JournalEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Content   string            `json:"content"`
	Summary   string            `json:"summary"`
	Mood      string            `json:"mood"`
	Reactions []JournalReaction `json:"reactions"`
}
