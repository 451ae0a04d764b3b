package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doodlemind/doodle.ai/internal/mind"
	"github.com/doodlemind/doodle.ai/internal/models"
	"github.com/doodlemind/doodle.ai/internal/utils"
	"github.com/doodlemind/doodle.ai/services"
)

// historyLoadLimit bounds how much chat history is rehydrated at session
// start. Older messages stay in the store.
const historyLoadLimit = 200

// Manager hands out one live Session per user, rehydrating state from the
// snapshot and history stores on first access.
type Manager struct {
	roster   []models.Persona
	turns    services.TurnGenerator
	analyzer services.EntryAnalyzer
	store    Store
	history  HistoryStore
	engine   utils.EngineConfig
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a Manager over the shared collaborators.
func NewManager(roster []models.Persona, turns services.TurnGenerator, analyzer services.EntryAnalyzer, store Store, history HistoryStore, engine utils.EngineConfig, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		roster:   roster,
		turns:    turns,
		analyzer: analyzer,
		store:    store,
		history:  history,
		engine:   engine,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Session returns the user's live session, creating and rehydrating it on
// first access. A failed snapshot load falls back to the default initial
// state rather than failing the request.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}

	s := &Session{
		UserID:   userID,
		store:    m.store,
		history:  m.history,
		logger:   m.logger,
		registry: mind.NewRegistry(m.roster),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		subs:     make(map[int]chan models.Message),
	}

	snapshot, err := m.store.LoadSnapshot(ctx, userID)
	if err != nil {
		m.logger.Warnw("snapshot load failed, starting fresh", "userId", userID, "error", err)
	} else if snapshot != nil {
		s.traits = snapshot.Traits
		s.selectionDone = snapshot.SelectionDone
		for id, flags := range snapshot.Flags {
			s.registry.SetFlags(id, flags.Unlocked, flags.Active)
		}
	}

	s.orch = services.NewOrchestrator(
		m.turns,
		s,
		services.OrchestratorConfig{
			HistoryWindow:     m.engine.HistoryWindow,
			MinReplyDelay:     m.engine.MinReplyDelay,
			MaxReplyDelay:     m.engine.MaxReplyDelay,
			SkillCheckChance:  m.engine.SkillCheckChance,
			SkillDifficulty:   m.engine.SkillDifficulty,
			GenerationTimeout: m.engine.GenerationTimeout,
		},
		m.logger,
		services.WithDeliveryObserver(s.handleDelivery),
	)
	s.journal = services.NewJournalService(m.analyzer, m.logger)

	if msgs, err := m.history.ListMessages(ctx, userID, historyLoadLimit); err != nil {
		m.logger.Warnw("history load failed, starting empty", "userId", userID, "error", err)
	} else {
		s.orch.LoadHistory(msgs)
	}

	if entries, err := m.history.ListEntries(ctx, userID, historyLoadLimit); err != nil {
		m.logger.Warnw("journal load failed, starting empty", "userId", userID, "error", err)
	} else {
		s.entries = entries
	}

	m.sessions[userID] = s
	return s, nil
}
