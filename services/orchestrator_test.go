package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/doodlemind/doodle.ai/internal/models"
)

type fakeCabinet struct {
	personas []models.Persona
}

func (f fakeCabinet) EligiblePersonas() []models.Persona {
	return f.personas
}

func (f fakeCabinet) Persona(id string) (models.Persona, bool) {
	for _, p := range f.personas {
		if p.ID == id {
			return p, true
		}
	}
	return models.Persona{}, false
}

type fakeGenerator struct {
	mu       sync.Mutex
	batch    []CandidateReply
	err      error
	gate     chan struct{}
	requests []TurnRequest
}

func (g *fakeGenerator) GenerateTurn(ctx context.Context, req TurnRequest) ([]CandidateReply, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	batch, err, gate := g.batch, g.err, g.gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return batch, err
}

func (g *fakeGenerator) lastRequest(t *testing.T) TurnRequest {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		t.Fatalf("no generation requests recorded")
	}
	return g.requests[len(g.requests)-1]
}

func testCabinet() fakeCabinet {
	return fakeCabinet{personas: []models.Persona{
		{ID: "cypher", Name: "Cypher", TypeCode: "INTJ", SkillName: "Deep Logic", Level: 3, Unlocked: true, Active: true},
		{ID: "eros", Name: "Eros", TypeCode: "ENFP", SkillName: "Flare", Level: 1, Unlocked: true, Active: true},
		{ID: "volt", Name: "Volt", TypeCode: "ESTP", SkillName: "Overclock", Level: 2, Unlocked: true, Active: true},
	}}
}

func testOrchestrator(t *testing.T, gen TurnGenerator, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	cfg := OrchestratorConfig{
		HistoryWindow:     8,
		MinReplyDelay:     time.Millisecond,
		MaxReplyDelay:     time.Millisecond,
		SkillCheckChance:  -1,
		GenerationTimeout: time.Second,
	}
	opts = append(opts, WithRand(rand.New(rand.NewSource(1))))
	return NewOrchestrator(gen, testCabinet(), cfg, zap.NewNop().Sugar(), opts...)
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !o.Busy() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("orchestrator never went idle")
}

func TestSendUserMessageDeliversBatchInOrder(t *testing.T) {
	gen := &fakeGenerator{batch: []CandidateReply{
		{PersonaID: "cypher", Text: "statement one"},
		{PersonaID: "eros", Text: "statement two"},
		{PersonaID: "volt", Text: "statement three"},
	}}
	o := testOrchestrator(t, gen)

	if _, err := o.SendUserMessage("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitIdle(t, o)

	history := o.Messages(0)
	if len(history) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(history))
	}
	if history[0].AuthorID != models.AuthorUser || history[0].Text != "hello" {
		t.Fatalf("expected user message first, got %+v", history[0])
	}
	for i, want := range []string{"cypher", "eros", "volt"} {
		if history[i+1].AuthorID != want {
			t.Fatalf("delivery %d: expected %s, got %s", i, want, history[i+1].AuthorID)
		}
	}
}

func TestBusyRejectsOverlappingRounds(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGenerator{gate: gate, batch: []CandidateReply{{PersonaID: "cypher", Text: "thinking"}}}
	o := testOrchestrator(t, gen)

	if _, err := o.SendUserMessage("first"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !o.Busy() {
		t.Fatalf("expected busy after send")
	}

	if _, err := o.SendUserMessage("second"); !errors.Is(err, ErrGenerating) {
		t.Fatalf("expected ErrGenerating, got %v", err)
	}
	if err := o.ContinueFlow(); !errors.Is(err, ErrGenerating) {
		t.Fatalf("expected ErrGenerating from continue, got %v", err)
	}

	close(gate)
	waitIdle(t, o)

	history := o.Messages(0)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages after round, got %d", len(history))
	}
}

func TestUnknownPersonaRepliesAreDropped(t *testing.T) {
	gen := &fakeGenerator{batch: []CandidateReply{
		{PersonaID: "cypher", Text: "hi"},
		{PersonaID: "ghost", Text: "??"},
	}}
	o := testOrchestrator(t, gen)

	if _, err := o.SendUserMessage("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitIdle(t, o)

	history := o.Messages(0)
	if len(history) != 2 {
		t.Fatalf("expected user message plus one reply, got %d", len(history))
	}
	if history[1].AuthorID != "cypher" {
		t.Fatalf("expected cypher reply, got %s", history[1].AuthorID)
	}
}

func TestGenerationFailureDegradesSilently(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("backend down")}
	o := testOrchestrator(t, gen)

	if _, err := o.SendUserMessage("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitIdle(t, o)

	history := o.Messages(0)
	if len(history) != 1 {
		t.Fatalf("expected only the user message, got %d", len(history))
	}
}

func TestGenerationTimeoutClearsBusy(t *testing.T) {
	gate := make(chan struct{}) // never closed; only the timeout releases it
	gen := &fakeGenerator{gate: gate, batch: []CandidateReply{{PersonaID: "cypher", Text: "late"}}}
	cfg := OrchestratorConfig{
		MinReplyDelay:     time.Millisecond,
		MaxReplyDelay:     time.Millisecond,
		SkillCheckChance:  -1,
		GenerationTimeout: 10 * time.Millisecond,
	}
	o := NewOrchestrator(gen, testCabinet(), cfg, zap.NewNop().Sugar(), WithRand(rand.New(rand.NewSource(1))))

	if err := o.ContinueFlow(); err != nil {
		t.Fatalf("continue failed: %v", err)
	}
	waitIdle(t, o)

	if len(o.Messages(0)) != 0 {
		t.Fatalf("timed-out round must not append messages")
	}
}

func TestHistoryWindowBoundsContext(t *testing.T) {
	seed := make([]models.Message, 0, 20)
	for i := 0; i < 20; i++ {
		seed = append(seed, models.Message{ID: fmt.Sprintf("m%d", i), AuthorID: "cypher", Text: "old"})
	}

	gen := &fakeGenerator{}
	o := testOrchestrator(t, gen)
	o.LoadHistory(seed)

	if _, err := o.SendUserMessage("fresh"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitIdle(t, o)

	req := gen.lastRequest(t)
	if len(req.History) != 8 {
		t.Fatalf("expected 8-message window, got %d", len(req.History))
	}
	if req.History[len(req.History)-1].Text != "fresh" {
		t.Fatalf("window must end at the newest message")
	}
}

func TestApplyResonanceTransitionsExactlyOnce(t *testing.T) {
	o := testOrchestrator(t, &fakeGenerator{})
	o.LoadHistory([]models.Message{
		{ID: "u1", AuthorID: models.AuthorUser, Text: "me"},
		{ID: "p1", AuthorID: "eros", Text: "feelings"},
	})

	msg, err := o.ApplyResonance("p1")
	if err != nil {
		t.Fatalf("resonance failed: %v", err)
	}
	if !msg.LikedByUser || msg.Likes != 1 {
		t.Fatalf("expected liked with 1 like, got %+v", msg)
	}

	if _, err := o.ApplyResonance("p1"); !errors.Is(err, ErrAlreadyResonated) {
		t.Fatalf("expected ErrAlreadyResonated, got %v", err)
	}
	if _, err := o.ApplyResonance("u1"); !errors.Is(err, ErrNotResonatable) {
		t.Fatalf("expected ErrNotResonatable, got %v", err)
	}
	if _, err := o.ApplyResonance("nope"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}

	history := o.Messages(0)
	if history[1].Likes != 1 {
		t.Fatalf("like count not committed to history")
	}
}

func TestResonanceTurnPutsFocusPersonaFirst(t *testing.T) {
	gen := &fakeGenerator{batch: []CandidateReply{
		{PersonaID: "cypher", Text: "as expected"},
		{PersonaID: "eros", Text: "I knew it!"},
		{PersonaID: "volt", Text: "called it"},
	}}
	o := testOrchestrator(t, gen)

	eros, _ := testCabinet().Persona("eros")
	if err := o.TriggerResonanceTurn(eros); err != nil {
		t.Fatalf("resonance turn failed: %v", err)
	}
	waitIdle(t, o)

	history := o.Messages(0)
	if len(history) != 4 {
		t.Fatalf("expected system event plus 3 replies, got %d", len(history))
	}
	if history[0].AuthorID != models.AuthorSystem {
		t.Fatalf("expected system event first, got %s", history[0].AuthorID)
	}
	if history[1].AuthorID != "eros" {
		t.Fatalf("expected eros to speak first, got %s", history[1].AuthorID)
	}
	if history[2].AuthorID != "cypher" || history[3].AuthorID != "volt" {
		t.Fatalf("remaining replies reordered: %s, %s", history[2].AuthorID, history[3].AuthorID)
	}

	req := gen.lastRequest(t)
	if req.Kind != TurnResonance || req.FocusPersonaID != "eros" {
		t.Fatalf("unexpected request: kind=%s focus=%s", req.Kind, req.FocusPersonaID)
	}
}

func TestDeliveryObserverSeesEveryAppend(t *testing.T) {
	gen := &fakeGenerator{batch: []CandidateReply{{PersonaID: "volt", Text: "go go go"}}}

	var mu sync.Mutex
	var seen []string
	observer := func(m models.Message) {
		mu.Lock()
		seen = append(seen, m.AuthorID)
		mu.Unlock()
	}

	o := testOrchestrator(t, gen, WithDeliveryObserver(observer))
	if _, err := o.SendUserMessage("now"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitIdle(t, o)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != models.AuthorUser || seen[1] != "volt" {
		t.Fatalf("unexpected observer sequence: %v", seen)
	}
}

func TestPromoteFocus(t *testing.T) {
	batch := []CandidateReply{
		{PersonaID: "a"}, {PersonaID: "b"}, {PersonaID: "c"}, {PersonaID: "b"},
	}
	got := promoteFocus(batch, "b")
	want := []string{"b", "a", "c", "b"}
	for i, id := range want {
		if got[i].PersonaID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].PersonaID)
		}
	}

	untouched := promoteFocus([]CandidateReply{{PersonaID: "a"}}, "zz")
	if len(untouched) != 1 || untouched[0].PersonaID != "a" {
		t.Fatalf("batch without focus persona must be unchanged")
	}
}
