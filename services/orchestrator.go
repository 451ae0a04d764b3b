package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doodlemind/doodle.ai/internal/mind"
	"github.com/doodlemind/doodle.ai/internal/models"
)

var (
	ErrGenerating       = errors.New("orchestrator: generation already in progress")
	ErrEmptyMessage     = errors.New("orchestrator: message text is empty")
	ErrMessageNotFound  = errors.New("orchestrator: message not found")
	ErrNotResonatable   = errors.New("orchestrator: only persona messages accept resonance")
	ErrAlreadyResonated = errors.New("orchestrator: message already resonated")
)

// Cabinet exposes the persona roster to the orchestrator. The session
// context implements it; the orchestrator only ever reads through it.
type Cabinet interface {
	EligiblePersonas() []models.Persona
	Persona(id string) (models.Persona, bool)
}

// TurnGenerator produces candidate reply batches. GenerationService is the
// production implementation; tests substitute fakes.
type TurnGenerator interface {
	GenerateTurn(ctx context.Context, req TurnRequest) ([]CandidateReply, error)
}

// OrchestratorConfig tunes staggering and context bounds. Zero values take
// the engine defaults.
type OrchestratorConfig struct {
	HistoryWindow     int
	MinReplyDelay     time.Duration
	MaxReplyDelay     time.Duration
	SkillCheckChance  float64
	SkillDifficulty   int
	GenerationTimeout time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 8
	}
	if c.MinReplyDelay <= 0 {
		c.MinReplyDelay = time.Second
	}
	if c.MaxReplyDelay == 0 {
		c.MaxReplyDelay = 3 * time.Second
	}
	if c.MaxReplyDelay < c.MinReplyDelay {
		c.MaxReplyDelay = c.MinReplyDelay
	}
	// A negative chance disables skill annotations entirely.
	if c.SkillCheckChance == 0 {
		c.SkillCheckChance = 0.15
	}
	if c.SkillDifficulty <= 0 {
		c.SkillDifficulty = mind.DefaultDifficulty
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 30 * time.Second
	}
	return c
}

// Orchestrator owns the append-only message history of one session and
// decides which personas speak, in what order, and when. A single busy flag
// serializes generation: a new batch is never requested while one is in
// flight or still being delivered.
type Orchestrator struct {
	gen     TurnGenerator
	cabinet Cabinet
	cfg     OrchestratorConfig
	logger  *zap.SugaredLogger
	deliver func(models.Message)

	mu      sync.Mutex
	rng     *rand.Rand
	busy    bool
	history []models.Message
}

// OrchestratorOption customizes an Orchestrator at construction.
type OrchestratorOption func(*Orchestrator)

// WithRand injects a deterministic random source for delays and dice.
func WithRand(rng *rand.Rand) OrchestratorOption {
	return func(o *Orchestrator) { o.rng = rng }
}

// WithDeliveryObserver registers a callback fired once per appended message
// (user, system, and persona alike), outside the orchestrator lock.
func WithDeliveryObserver(fn func(models.Message)) OrchestratorOption {
	return func(o *Orchestrator) { o.deliver = fn }
}

// NewOrchestrator builds an orchestrator over the given generator and roster.
func NewOrchestrator(gen TurnGenerator, cabinet Cabinet, cfg OrchestratorConfig, logger *zap.SugaredLogger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		gen:     gen,
		cabinet: cabinet,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a generation round is in flight or being delivered.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Messages returns a copy of the most recent messages, oldest first. A
// non-positive limit returns the full history.
func (o *Orchestrator) Messages(limit int) []models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs := o.history
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// LoadHistory seeds the history from persisted state. Intended for session
// start only; it replaces whatever is held and must not race a live turn.
func (o *Orchestrator) LoadHistory(msgs []models.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history[:0], msgs...)
}

// SendUserMessage appends the user's message and launches a reply round.
// Rejected with ErrGenerating while a previous round is still running.
func (o *Orchestrator) SendUserMessage(text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return models.Message{}, ErrGenerating
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		AuthorID:  models.AuthorUser,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	o.history = append(o.history, msg)
	o.busy = true
	req := o.turnRequestLocked(TurnUserMessage, text, "")
	o.mu.Unlock()

	o.notify(msg)
	go o.runTurn(req)

	return msg, nil
}

// ContinueFlow launches a reply round with no new user text, asking the
// cabinet to keep the scene moving on its own.
func (o *Orchestrator) ContinueFlow() error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrGenerating
	}
	o.busy = true
	req := o.turnRequestLocked(TurnContinuation, "", "")
	o.mu.Unlock()

	go o.runTurn(req)
	return nil
}

// ApplyResonance performs the atomic like transition on a persona message:
// LikedByUser flips false to true exactly once and Likes increments with it.
// Duplicate approvals return ErrAlreadyResonated and change nothing.
func (o *Orchestrator) ApplyResonance(messageID string) (models.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := len(o.history) - 1; i >= 0; i-- {
		if o.history[i].ID != messageID {
			continue
		}
		if !o.history[i].FromPersona() {
			return models.Message{}, ErrNotResonatable
		}
		if o.history[i].LikedByUser {
			return models.Message{}, ErrAlreadyResonated
		}
		o.history[i].LikedByUser = true
		o.history[i].Likes++
		return o.history[i], nil
	}

	return models.Message{}, ErrMessageNotFound
}

// TriggerResonanceTurn appends a system event describing the approval and
// launches a reply round biased so the approved persona speaks first. Like
// any other round it is refused while the orchestrator is busy; the trait
// reinforcement recorded by ApplyResonance stands regardless.
func (o *Orchestrator) TriggerResonanceTurn(persona models.Persona) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrGenerating
	}

	event := models.Message{
		ID:        uuid.NewString(),
		AuthorID:  models.AuthorSystem,
		Text:      fmt.Sprintf("The host resonates with %s. %s surges with conviction.", persona.Name, persona.Name),
		Timestamp: time.Now().UTC(),
	}
	o.history = append(o.history, event)
	o.busy = true
	req := o.turnRequestLocked(TurnResonance, "", persona.ID)
	o.mu.Unlock()

	o.notify(event)
	go o.runTurn(req)
	return nil
}

// turnRequestLocked snapshots the eligible roster and trailing history
// window for one round. Caller must hold o.mu.
func (o *Orchestrator) turnRequestLocked(kind TurnKind, userText, focusID string) TurnRequest {
	window := o.history
	if len(window) > o.cfg.HistoryWindow {
		window = window[len(window)-o.cfg.HistoryWindow:]
	}
	history := make([]models.Message, len(window))
	copy(history, window)

	return TurnRequest{
		Personas:       o.cabinet.EligiblePersonas(),
		History:        history,
		UserText:       userText,
		Kind:           kind,
		FocusPersonaID: focusID,
	}
}

// runTurn performs the external call and schedules delivery. Failures and
// timeouts degrade to an empty batch: the conversation simply does not
// advance and busy clears immediately.
func (o *Orchestrator) runTurn(req TurnRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GenerationTimeout)
	defer cancel()

	batch, err := o.gen.GenerateTurn(ctx, req)
	if err != nil {
		o.logger.Warnw("reply generation failed", "kind", req.Kind, "error", err)
		batch = nil
	}

	batch = filterEligible(batch, req.Personas)
	if req.Kind == TurnResonance {
		batch = promoteFocus(batch, req.FocusPersonaID)
	}

	o.schedule(batch)
}

type plannedDelivery struct {
	msg   models.Message
	delay time.Duration
}

// schedule fixes delivery order and delays at batch-return time, then plays
// the batch out on a single goroutine. Busy clears exactly when the last
// delivery fires, or immediately for an empty batch.
func (o *Orchestrator) schedule(batch []CandidateReply) {
	o.mu.Lock()
	if len(batch) == 0 {
		o.busy = false
		o.mu.Unlock()
		return
	}

	plan := make([]plannedDelivery, 0, len(batch))
	for _, reply := range batch {
		msg := models.Message{
			ID:             uuid.NewString(),
			AuthorID:       reply.PersonaID,
			Text:           reply.Text,
			SkillActivated: reply.SkillActivated,
			SkillText:      reply.SkillText,
		}
		if msg.SkillActivated == "" && o.rng.Float64() < o.cfg.SkillCheckChance {
			if persona, ok := o.cabinet.Persona(reply.PersonaID); ok {
				check := mind.RollSkillCheck(persona, o.cfg.SkillDifficulty, o.rng)
				msg.SkillActivated = check.SkillName
				msg.SkillText = fmt.Sprintf("%s (2d6 %d+%d%+d vs %d)", check.Outcome, check.Die1, check.Die2, check.Modifier, check.Difficulty)
			}
		}
		plan = append(plan, plannedDelivery{msg: msg, delay: o.replyDelayLocked()})
	}
	o.mu.Unlock()

	go func() {
		for _, d := range plan {
			time.Sleep(d.delay)
			msg := d.msg
			msg.Timestamp = time.Now().UTC()

			o.mu.Lock()
			o.history = append(o.history, msg)
			o.mu.Unlock()

			o.notify(msg)
		}

		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()
}

// replyDelayLocked draws a randomized stagger delay. Caller must hold o.mu.
func (o *Orchestrator) replyDelayLocked() time.Duration {
	spread := o.cfg.MaxReplyDelay - o.cfg.MinReplyDelay
	if spread <= 0 {
		return o.cfg.MinReplyDelay
	}
	return o.cfg.MinReplyDelay + time.Duration(o.rng.Int63n(int64(spread)))
}

func (o *Orchestrator) notify(msg models.Message) {
	if o.deliver != nil {
		o.deliver(msg)
	}
}

// filterEligible drops batch entries from personas outside the round's
// eligibility snapshot. The generation boundary already validates ids; this
// guards against generators that do not.
func filterEligible(batch []CandidateReply, personas []models.Persona) []CandidateReply {
	known := make(map[string]struct{}, len(personas))
	for _, p := range personas {
		known[p.ID] = struct{}{}
	}
	out := batch[:0]
	for _, reply := range batch {
		if _, ok := known[reply.PersonaID]; ok {
			out = append(out, reply)
		}
	}
	return out
}

// promoteFocus moves the focus persona's first reply to the front, keeping
// every other reply in its returned order. A batch without the focus persona
// is left untouched.
func promoteFocus(batch []CandidateReply, focusID string) []CandidateReply {
	for i, reply := range batch {
		if reply.PersonaID != focusID {
			continue
		}
		if i == 0 {
			return batch
		}
		promoted := make([]CandidateReply, 0, len(batch))
		promoted = append(promoted, batch[i])
		promoted = append(promoted, batch[:i]...)
		promoted = append(promoted, batch[i+1:]...)
		return promoted
	}
	return batch
}
