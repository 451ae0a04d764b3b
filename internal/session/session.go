// Package session owns the per-user state of the inner cabinet: the persona
// registry, the trait vector, the conversation orchestrator, and the journal.
// Persistence is an injected collaborator invoked after each committed
// mutation, never an implicit global.
package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doodlemind/doodle.ai/internal/mind"
	"github.com/doodlemind/doodle.ai/internal/models"
	"github.com/doodlemind/doodle.ai/services"
)

// ErrSelectionDone guards the one-time bootstrap path on later app starts.
var ErrSelectionDone = errors.New("session: initial selection already completed")

// PersonaFlags is the persisted unlock/activation pair for one persona.
type PersonaFlags struct {
	Unlocked bool `json:"unlocked"`
	Active   bool `json:"active"`
}

// Snapshot is the key-value state written back after every mutation. Missing
// snapshots mean a fresh session with default initial state.
type Snapshot struct {
	Traits        mind.TraitVector        `json:"traits"`
	Flags         map[string]PersonaFlags `json:"flags"`
	SelectionDone bool                    `json:"selectionDone"`
}

// Store persists session snapshots. Load returns (nil, nil) when no snapshot
// exists yet.
type Store interface {
	LoadSnapshot(ctx context.Context, userID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, userID string, snapshot Snapshot) error
}

// HistoryStore persists the append-only message history and journal entries.
type HistoryStore interface {
	AppendMessage(ctx context.Context, userID string, msg models.Message) error
	MarkResonated(ctx context.Context, userID, messageID string, likes int) error
	ListMessages(ctx context.Context, userID string, limit int) ([]models.Message, error)
	AppendEntry(ctx context.Context, userID string, entry models.JournalEntry) error
	ListEntries(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error)
}

const persistTimeout = 5 * time.Second

// Session is one user's live cabinet. All registry and trait mutations run
// on the caller's goroutine under s.mu; scheduled deliveries only append
// messages and never touch the registry or the vector.
type Session struct {
	UserID string

	orch    *services.Orchestrator
	journal *services.JournalService
	store   Store
	history HistoryStore
	logger  *zap.SugaredLogger

	mu            sync.Mutex
	registry      *mind.Registry
	traits        mind.TraitVector
	selectionDone bool
	entries       []models.JournalEntry
	rng           *rand.Rand

	subMu  sync.Mutex
	subs   map[int]chan models.Message
	nextID int
}

// EligiblePersonas implements services.Cabinet.
func (s *Session) EligiblePersonas() []models.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Eligible()
}

// Persona implements services.Cabinet.
func (s *Session) Persona(id string) (models.Persona, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Get(id)
}

// Personas returns the full roster with current flags, catalog order.
func (s *Session) Personas() []models.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.All()
}

// Profile returns the trait vector and its resolved dominant type label.
func (s *Session) Profile() (mind.TraitVector, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traits, s.traits.DominantType()
}

// SelectionDone reports whether the one-time bootstrap has already run.
func (s *Session) SelectionDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionDone
}

// Busy reports whether a generation round is running.
func (s *Session) Busy() bool {
	return s.orch.Busy()
}

// Messages returns the most recent chat history, oldest first.
func (s *Session) Messages(limit int) []models.Message {
	return s.orch.Messages(limit)
}

// Entries returns the journal, oldest first.
func (s *Session) Entries() []models.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.JournalEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Bootstrap runs the one-time initial cabinet selection: the chosen primary,
// its shadow when one exists, random companions to a party of four, and the
// starting energy grant.
func (s *Session) Bootstrap(ctx context.Context, primaryID string) ([]string, error) {
	s.mu.Lock()
	if s.selectionDone {
		s.mu.Unlock()
		return nil, ErrSelectionDone
	}
	selected, err := s.registry.BootstrapSelection(primaryID, &s.traits, s.rng)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.selectionDone = true
	s.mu.Unlock()

	s.persist(ctx)
	return selected, nil
}

// Unlock spends energy to wake a persona. Safe to retry.
func (s *Session) Unlock(ctx context.Context, personaID string) error {
	s.mu.Lock()
	err := s.registry.Unlock(personaID, &s.traits)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.persist(ctx)
	return nil
}

// ToggleActive flips a persona in or out of the speaking rotation.
func (s *Session) ToggleActive(ctx context.Context, personaID string) error {
	s.mu.Lock()
	err := s.registry.ToggleActive(personaID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.persist(ctx)
	return nil
}

// Send posts a user message and starts a reply round.
func (s *Session) Send(text string) (models.Message, error) {
	return s.orch.SendUserMessage(text)
}

// Continue asks the cabinet to keep talking without new user input.
func (s *Session) Continue() error {
	return s.orch.ContinueFlow()
}

// Resonate records the user's approval of a persona message: the like
// transition, the trait reinforcement, and the follow-up round where the
// approved persona leads. The reinforcement commits even when the
// orchestrator is too busy to run the follow-up round.
func (s *Session) Resonate(ctx context.Context, messageID string) error {
	msg, err := s.orch.ApplyResonance(messageID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	persona, ok := s.registry.Get(msg.AuthorID)
	if ok {
		s.traits.Reinforce(persona.TypeCode)
	}
	s.mu.Unlock()

	if !ok {
		// A retired author id from an old history; the like stands but
		// there is nothing to reinforce.
		s.logger.Warnw("resonance on unknown persona", "authorId", msg.AuthorID)
		return nil
	}

	s.persist(ctx)
	if err := s.history.MarkResonated(ctx, s.UserID, msg.ID, msg.Likes); err != nil {
		s.logger.Warnw("failed to persist resonance", "messageId", msg.ID, "error", err)
	}

	if err := s.orch.TriggerResonanceTurn(persona); err != nil {
		if errors.Is(err, services.ErrGenerating) {
			s.logger.Debugw("resonance round skipped, orchestrator busy", "personaId", persona.ID)
			return nil
		}
		return err
	}
	return nil
}

// AddJournalEntry analyzes the text and appends the resulting entry. The
// error is surfaced so the caller can offer a retry.
func (s *Session) AddJournalEntry(ctx context.Context, text string) (models.JournalEntry, error) {
	entry, err := s.journal.Analyze(ctx, text, s.EligiblePersonas())
	if err != nil {
		return models.JournalEntry{}, err
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	if err := s.history.AppendEntry(ctx, s.UserID, entry); err != nil {
		s.logger.Warnw("failed to persist journal entry", "entryId", entry.ID, "error", err)
	}
	return entry, nil
}

// Subscribe registers a live feed of delivered messages. The returned cancel
// function must be called when the consumer goes away.
func (s *Session) Subscribe() (<-chan models.Message, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan models.Message, 16)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// handleDelivery is the orchestrator's delivery observer: every appended
// message is persisted best-effort and fanned out to live subscribers.
func (s *Session) handleDelivery(msg models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.history.AppendMessage(ctx, s.UserID, msg); err != nil {
		s.logger.Warnw("failed to persist message", "messageId", msg.ID, "error", err)
	}

	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- msg:
		default:
			// Slow consumer; drop rather than stall delivery.
		}
	}
	s.subMu.Unlock()
}

// persist writes the snapshot back. Save failures are logged and otherwise
// ignored; persistence is best-effort by design.
func (s *Session) persist(ctx context.Context) {
	s.mu.Lock()
	snapshot := Snapshot{
		Traits:        s.traits,
		Flags:         make(map[string]PersonaFlags),
		SelectionDone: s.selectionDone,
	}
	for _, p := range s.registry.All() {
		snapshot.Flags[p.ID] = PersonaFlags{Unlocked: p.Unlocked, Active: p.Active}
	}
	s.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(withoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.SaveSnapshot(saveCtx, s.UserID, snapshot); err != nil {
		s.logger.Warnw("failed to save snapshot", "userId", s.UserID, "error", err)
	}
}

// withoutCancel detaches the save from the caller's request lifetime so a
// closed connection cannot lose a committed mutation.
func withoutCancel(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
