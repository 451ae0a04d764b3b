package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/doodlemind/doodle.ai/internal/models"
	"github.com/doodlemind/doodle.ai/internal/utils"
)

// TurnKind distinguishes why a reply batch is being requested.
type TurnKind string

const (
	TurnUserMessage  TurnKind = "user_message"
	TurnContinuation TurnKind = "continuation"
	TurnResonance    TurnKind = "resonance"
)

// TurnRequest carries everything the generation backend needs to produce the
// next round of cabinet replies.
type TurnRequest struct {
	Personas       []models.Persona
	History        []models.Message
	UserText       string
	Kind           TurnKind
	FocusPersonaID string
}

// CandidateReply is one validated reply from a generated batch.
type CandidateReply struct {
	PersonaID      string
	Text           string
	SkillActivated string
	SkillText      string
}

// JournalAnalysis is the structured result of analyzing a journal entry.
type JournalAnalysis struct {
	Summary   string
	Mood      string
	Reactions []models.JournalReaction
}

// ErrEmptyAnalysis is returned when the backend produced no usable analysis.
var ErrEmptyAnalysis = errors.New("generation: empty journal analysis")

// GenerationService talks to an OpenAI-compatible chat-completions backend
// and validates its structured output at the boundary: entries attributed to
// unknown or ineligible personas are dropped, never surfaced.
type GenerationService struct {
	baseURL     string
	backupURL   string
	apiKey      string
	model       string
	temperature float64
	client      httpDoer
	logger      *zap.SugaredLogger
}

// NewGenerationService constructs a GenerationService from cfg.
func NewGenerationService(cfg *utils.Config, logger *zap.SugaredLogger) *GenerationService {
	base := cfg.GenAI.BaseURL()
	if base == "" {
		base = "https://openai.qiniu.com/v1"
	}

	model := strings.TrimSpace(cfg.GenAI.Model)
	if model == "" {
		model = "doubao-1.5-pro"
	}

	return &GenerationService{
		baseURL:     base,
		backupURL:   strings.TrimRight(strings.TrimSpace(cfg.GenAI.BackupEndpoint), "/"),
		apiKey:      strings.TrimSpace(cfg.GenAI.APIKey),
		model:       model,
		temperature: cfg.GenAI.Temperature,
		client:      newDefaultHTTPClient(),
		logger:      logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatAPIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatAPIChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatAPIResponse struct {
	ID      string          `json:"id"`
	Choices []chatAPIChoice `json:"choices"`
	Error   *genAIError     `json:"error,omitempty"`
}

type candidatePayload struct {
	RoleID         string `json:"roleId"`
	Text           string `json:"text"`
	SkillActivated string `json:"skillActivated,omitempty"`
	SkillText      string `json:"skillText,omitempty"`
}

type analysisPayload struct {
	Summary   string `json:"summary"`
	Mood      string `json:"mood"`
	Reactions []struct {
		RoleID  string `json:"roleId"`
		Text    string `json:"text"`
		IsCheck bool   `json:"isCheck"`
	} `json:"reactions"`
}

// GenerateTurn requests one batch of cabinet replies. The returned slice
// preserves the backend's ordering; invalid entries are filtered out.
func (s *GenerationService) GenerateTurn(ctx context.Context, req TurnRequest) ([]CandidateReply, error) {
	if len(req.Personas) == 0 {
		return nil, nil
	}

	content, err := s.complete(ctx, cabinetSystemPrompt(req.Personas), turnPrompt(req))
	if err != nil {
		return nil, err
	}

	var payload []candidatePayload
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &payload); err != nil {
		return nil, fmt.Errorf("generation: decode reply batch: %w", err)
	}

	known := make(map[string]struct{}, len(req.Personas))
	for _, p := range req.Personas {
		known[p.ID] = struct{}{}
	}

	replies := make([]CandidateReply, 0, len(payload))
	for _, entry := range payload {
		id := strings.TrimSpace(entry.RoleID)
		text := strings.TrimSpace(entry.Text)
		if id == "" || text == "" {
			continue
		}
		if _, ok := known[id]; !ok {
			s.logger.Debugw("dropping reply from unknown persona", "roleId", id)
			continue
		}
		replies = append(replies, CandidateReply{
			PersonaID:      id,
			Text:           text,
			SkillActivated: strings.TrimSpace(entry.SkillActivated),
			SkillText:      strings.TrimSpace(entry.SkillText),
		})
	}

	return replies, nil
}

// AnalyzeJournal requests a structured analysis of a free-text entry.
// Reactions from personas outside the roster are dropped; an analysis with
// no summary and no reactions counts as a failure.
func (s *GenerationService) AnalyzeJournal(ctx context.Context, text string, personas []models.Persona) (*JournalAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("generation: journal text is empty")
	}

	content, err := s.complete(ctx, cabinetSystemPrompt(personas), journalPrompt(text))
	if err != nil {
		return nil, err
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &payload); err != nil {
		return nil, fmt.Errorf("generation: decode journal analysis: %w", err)
	}

	known := make(map[string]struct{}, len(personas))
	for _, p := range personas {
		known[p.ID] = struct{}{}
	}

	analysis := &JournalAnalysis{
		Summary: strings.TrimSpace(payload.Summary),
		Mood:    strings.TrimSpace(payload.Mood),
	}
	for _, reaction := range payload.Reactions {
		id := strings.TrimSpace(reaction.RoleID)
		body := strings.TrimSpace(reaction.Text)
		if id == "" || body == "" {
			continue
		}
		if _, ok := known[id]; !ok {
			s.logger.Debugw("dropping journal reaction from unknown persona", "roleId", id)
			continue
		}
		analysis.Reactions = append(analysis.Reactions, models.JournalReaction{
			PersonaID: id,
			Text:      body,
			IsProbe:   reaction.IsCheck,
		})
	}

	if analysis.Summary == "" && len(analysis.Reactions) == 0 {
		return nil, ErrEmptyAnalysis
	}

	return analysis, nil
}

// complete performs one chat completion, retrying once against the backup
// endpoint on transport failure.
func (s *GenerationService) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := chatAPIRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if s.temperature > 0 {
		payload.Temperature = s.temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("generation: marshal payload: %w", err)
	}

	content, err := s.completeAt(ctx, s.baseURL, body)
	if err != nil && s.backupURL != "" && s.backupURL != s.baseURL && ctx.Err() == nil {
		s.logger.Warnw("primary generation endpoint failed, retrying backup", "error", err)
		content, err = s.completeAt(ctx, s.backupURL, body)
	}
	return content, err
}

func (s *GenerationService) completeAt(ctx context.Context, base string, body []byte) (string, error) {
	endpoint := base + "/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("generation: create request: %w", err)
	}
	if s.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("generation: call api: %w", err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("generation: read response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", buildGenAIAPIError(response.StatusCode, respBody)
	}

	var apiResp chatAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("generation: decode response: %w", err)
	}
	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", fmt.Errorf("generation: api error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", errors.New("generation: response contained no choices")
	}

	return apiResp.Choices[0].Message.Content, nil
}

func cabinetSystemPrompt(personas []models.Persona) string {
	var b strings.Builder
	b.WriteString("You are DOODLE, a raw map of the host's inner mind rendered as a group chat of personified traits.\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Resonance: when the host approves a persona's message, that persona is emboldened and must speak first, louder; the others may echo, mock, or sulk.\n")
	b.WriteString("2. Every persona has a strong sense of self; replies are short, spoken, and in character.\n")
	b.WriteString("3. Active cabinet:\n")
	for _, p := range personas {
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", p.Name, p.ID, p.TypeCode, p.Title)
	}
	b.WriteString("Always answer with strict JSON and nothing else.")
	return b.String()
}

func turnPrompt(req TurnRequest) string {
	var b strings.Builder

	switch req.Kind {
	case TurnResonance:
		fmt.Fprintf(&b, "[event]: the host resonated with %s's last message. %s must reply first, emboldened.\n", req.FocusPersonaID, req.FocusPersonaID)
	case TurnContinuation:
		b.WriteString("[event]: silence. Keep the scene moving; the personas react to each other, not to the host.\n")
	default:
		b.WriteString("[event]: the host posted a new thought.\n")
	}

	b.WriteString("[recent stream]:\n")
	for _, m := range req.History {
		fmt.Fprintf(&b, "%s: %s\n", m.AuthorID, m.Text)
	}
	if strings.TrimSpace(req.UserText) != "" {
		fmt.Fprintf(&b, "user: %s\n", req.UserText)
	}

	b.WriteString("\nProduce one round of 3-4 consecutive replies as a JSON array of objects ")
	b.WriteString(`{"roleId","text","skillActivated"?,"skillText"?}. roleId must be one of the cabinet ids.`)
	return b.String()
}

func journalPrompt(text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[host's latest journal fragment]:\n%q\n\n", text)
	b.WriteString("Analyze it. Return a JSON object ")
	b.WriteString(`{"summary","mood","reactions":[{"roleId","text","isCheck"}]} `)
	b.WriteString("with a short incisive summary, a one-word mood label, and 2-4 persona reactions; isCheck marks a reaction probing a tendency.")
	return b.String()
}

// stripCodeFence unwraps content the model wrapped in a markdown fence.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
