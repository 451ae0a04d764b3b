package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doodlemind/doodle.ai/internal/models"
)

// ErrEmptyEntry is returned when an analysis is requested for blank text.
var ErrEmptyEntry = errors.New("journal: entry text is empty")

// EntryAnalyzer is the slice of the generation backend the journal path
// consumes.
type EntryAnalyzer interface {
	AnalyzeJournal(ctx context.Context, text string, personas []models.Persona) (*JournalAnalysis, error)
}

// JournalService turns free-text entries into analyzed journal records.
// Unlike chat turns, a failed analysis is surfaced to the caller: journaling
// is a deliberate action and the user should see that it did not land.
type JournalService struct {
	analyzer EntryAnalyzer
	logger   *zap.SugaredLogger
}

// NewJournalService builds a JournalService over the given analyzer.
func NewJournalService(analyzer EntryAnalyzer, logger *zap.SugaredLogger) *JournalService {
	return &JournalService{analyzer: analyzer, logger: logger}
}

// Analyze submits the entry text with the active roster and builds the
// immutable journal record. No entry is created on failure.
func (s *JournalService) Analyze(ctx context.Context, text string, personas []models.Persona) (models.JournalEntry, error) {
	if strings.TrimSpace(text) == "" {
		return models.JournalEntry{}, ErrEmptyEntry
	}

	analysis, err := s.analyzer.AnalyzeJournal(ctx, text, personas)
	if err != nil {
		s.logger.Warnw("journal analysis failed", "error", err)
		return models.JournalEntry{}, fmt.Errorf("journal: analyze entry: %w", err)
	}

	entry := models.JournalEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Content:   text,
		Summary:   analysis.Summary,
		Mood:      analysis.Mood,
		Reactions: analysis.Reactions,
	}

	return entry, nil
}
