package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/doodlemind/doodle.ai/internal/models"
)

const (
	messagesCollection = "messages"
	journalCollection  = "journal_entries"
)

type messageDoc struct {
	UserID         string    `bson:"user_id"`
	MessageID      string    `bson:"message_id"`
	AuthorID       string    `bson:"author_id"`
	Text           string    `bson:"text"`
	Timestamp      time.Time `bson:"timestamp"`
	Likes          int       `bson:"likes"`
	LikedByUser    bool      `bson:"liked_by_user"`
	SkillActivated string    `bson:"skill_activated,omitempty"`
	SkillText      string    `bson:"skill_text,omitempty"`
}

type journalDoc struct {
	UserID    string                   `bson:"user_id"`
	EntryID   string                   `bson:"entry_id"`
	Timestamp time.Time                `bson:"timestamp"`
	Content   string                   `bson:"content"`
	Summary   string                   `bson:"summary"`
	Mood      string                   `bson:"mood"`
	Reactions []models.JournalReaction `bson:"reactions"`
}

// HistoryStore keeps the append-only chat timeline and journal entries in
// Mongo. It implements session.HistoryStore.
type HistoryStore struct {
	messages *mongo.Collection
	journal  *mongo.Collection
}

func NewHistoryStore(database *mongo.Database) *HistoryStore {
	return &HistoryStore{
		messages: database.Collection(messagesCollection),
		journal:  database.Collection(journalCollection),
	}
}

func (h *HistoryStore) AppendMessage(ctx context.Context, userID string, msg models.Message) error {
	doc := messageDoc{
		UserID:         userID,
		MessageID:      msg.ID,
		AuthorID:       msg.AuthorID,
		Text:           msg.Text,
		Timestamp:      msg.Timestamp,
		Likes:          msg.Likes,
		LikedByUser:    msg.LikedByUser,
		SkillActivated: msg.SkillActivated,
		SkillText:      msg.SkillText,
	}
	if _, err := h.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append message %s: %w", msg.ID, err)
	}
	return nil
}

func (h *HistoryStore) MarkResonated(ctx context.Context, userID, messageID string, likes int) error {
	filter := bson.M{"user_id": userID, "message_id": messageID}
	update := bson.M{"$set": bson.M{"liked_by_user": true, "likes": likes}}
	res, err := h.messages.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mark message %s resonated: %w", messageID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mark message %s resonated: no such message", messageID)
	}
	return nil
}

// ListMessages returns the most recent messages, oldest first.
func (h *HistoryStore) ListMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := h.messages.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", userID, err)
	}

	out := make([]models.Message, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		d := docs[i]
		out = append(out, models.Message{
			ID:             d.MessageID,
			AuthorID:       d.AuthorID,
			Text:           d.Text,
			Timestamp:      d.Timestamp,
			Likes:          d.Likes,
			LikedByUser:    d.LikedByUser,
			SkillActivated: d.SkillActivated,
			SkillText:      d.SkillText,
		})
	}
	return out, nil
}

func (h *HistoryStore) AppendEntry(ctx context.Context, userID string, entry models.JournalEntry) error {
	doc := journalDoc{
		UserID:    userID,
		EntryID:   entry.ID,
		Timestamp: entry.Timestamp,
		Content:   entry.Content,
		Summary:   entry.Summary,
		Mood:      entry.Mood,
		Reactions: entry.Reactions,
	}
	if _, err := h.journal.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append journal entry %s: %w", entry.ID, err)
	}
	return nil
}

// ListEntries returns the most recent journal entries, oldest first.
func (h *HistoryStore) ListEntries(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := h.journal.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list journal entries for %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var docs []journalDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode journal entries for %s: %w", userID, err)
	}

	out := make([]models.JournalEntry, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		d := docs[i]
		out = append(out, models.JournalEntry{
			ID:        d.EntryID,
			Timestamp: d.Timestamp,
			Content:   d.Content,
			Summary:   d.Summary,
			Mood:      d.Mood,
			Reactions: d.Reactions,
		})
	}
	return out, nil
}
