// Package api exposes the cabinet over HTTP: auth, persona management, the
// chat loop, resonance, the journal, and a websocket feed of deliveries.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/doodlemind/doodle.ai/internal/auth"
	"github.com/doodlemind/doodle.ai/internal/mind"
	"github.com/doodlemind/doodle.ai/internal/session"
	"github.com/doodlemind/doodle.ai/services"
)

type Handler struct {
	authService *auth.Service
	sessions    *session.Manager
	logger      *zap.SugaredLogger
}

func NewHandler(authService *auth.Service, sessions *session.Manager, logger *zap.SugaredLogger) *Handler {
	return &Handler{authService: authService, sessions: sessions, logger: logger}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.handleRegister)
	authGroup.POST("/login", h.handleLogin)

	secured := apiGroup.Group("", auth.Middleware(h.authService))

	personaGroup := secured.Group("/personas")
	personaGroup.GET("", h.handleListPersonas)
	personaGroup.POST("/bootstrap", h.handleBootstrap)
	personaGroup.POST("/:id/unlock", h.handleUnlock)
	personaGroup.POST("/:id/active", h.handleToggleActive)

	chatGroup := secured.Group("/chat")
	chatGroup.GET("/messages", h.handleListMessages)
	chatGroup.POST("/messages", h.handleSendMessage)
	chatGroup.POST("/continue", h.handleContinue)
	chatGroup.POST("/messages/:id/resonance", h.handleResonance)
	chatGroup.GET("/stream", h.handleStream)

	journalGroup := secured.Group("/journal")
	journalGroup.GET("", h.handleListEntries)
	journalGroup.POST("", h.handleAddEntry)

	secured.GET("/profile", h.handleProfile)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type bootstrapRequest struct {
	PrimaryID string `json:"primaryId"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type journalRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch err {
		case auth.ErrUsernameRequired, auth.ErrPasswordTooWeak:
			writeError(c, http.StatusBadRequest, err.Error(), err)
			return
		case auth.ErrUserExists, auth.ErrEmailExists:
			writeError(c, http.StatusConflict, err.Error(), err)
			return
		default:
			writeError(c, http.StatusInternalServerError, "failed to register user", err)
			return
		}
	}

	c.JSON(http.StatusCreated, newAuthResponse(result))
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if req.Identifier == "" || req.Password == "" {
		writeError(c, http.StatusBadRequest, "identifier and password are required", auth.ErrInvalidCredentials)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		switch err {
		case auth.ErrInvalidCredentials:
			writeError(c, http.StatusUnauthorized, err.Error(), err)
			return
		default:
			writeError(c, http.StatusInternalServerError, "failed to login", err)
			return
		}
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

func (h *Handler) handleListPersonas(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"personas":      s.Personas(),
		"selectionDone": s.SelectionDone(),
	})
}

func (h *Handler) handleBootstrap(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req bootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	if req.PrimaryID == "" {
		writeError(c, http.StatusBadRequest, "primaryId is required", mind.ErrUnknownPersona)
		return
	}

	selected, err := s.Bootstrap(c.Request.Context(), req.PrimaryID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSelectionDone):
			writeError(c, http.StatusConflict, "initial selection already completed", err)
		case errors.Is(err, mind.ErrUnknownPersona):
			writeError(c, http.StatusNotFound, "unknown persona", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to bootstrap cabinet", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"selected": selected,
		"personas": s.Personas(),
	})
}

func (h *Handler) handleUnlock(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.Unlock(c.Request.Context(), c.Param("id")); err != nil {
		switch {
		case errors.Is(err, mind.ErrUnknownPersona):
			writeError(c, http.StatusNotFound, "unknown persona", err)
		case errors.Is(err, mind.ErrInsufficientEnergy):
			writeError(c, http.StatusConflict, "not enough energy", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to unlock persona", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"personas": s.Personas()})
}

func (h *Handler) handleToggleActive(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.ToggleActive(c.Request.Context(), c.Param("id")); err != nil {
		switch {
		case errors.Is(err, mind.ErrUnknownPersona):
			writeError(c, http.StatusNotFound, "unknown persona", err)
		case errors.Is(err, mind.ErrNotUnlocked):
			writeError(c, http.StatusConflict, "persona is not unlocked", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to toggle persona", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"personas": s.Personas()})
}

func (h *Handler) handleListMessages(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": s.Messages(0),
		"busy":     s.Busy(),
	})
}

func (h *Handler) handleSendMessage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	msg, err := s.Send(req.Text)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			writeError(c, http.StatusBadRequest, "message text is required", err)
		case errors.Is(err, services.ErrGenerating):
			writeError(c, http.StatusConflict, "a reply round is already running", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to send message", err)
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

func (h *Handler) handleContinue(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.Continue(); err != nil {
		switch {
		case errors.Is(err, services.ErrGenerating):
			writeError(c, http.StatusConflict, "a reply round is already running", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to continue conversation", err)
		}
		return
	}

	c.Status(http.StatusAccepted)
}

func (h *Handler) handleResonance(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.Resonate(c.Request.Context(), c.Param("id")); err != nil {
		switch {
		case errors.Is(err, services.ErrMessageNotFound):
			writeError(c, http.StatusNotFound, "message not found", err)
		case errors.Is(err, services.ErrNotResonatable):
			writeError(c, http.StatusConflict, "only persona messages can be resonated with", err)
		case errors.Is(err, services.ErrAlreadyResonated):
			writeError(c, http.StatusConflict, "message already resonated with", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to apply resonance", err)
		}
		return
	}

	traits, dominant := s.Profile()
	c.JSON(http.StatusOK, gin.H{
		"traits":       traits,
		"dominantType": dominant,
	})
}

func (h *Handler) handleListEntries(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": s.Entries()})
}

func (h *Handler) handleAddEntry(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req journalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	entry, err := s.AddJournalEntry(c.Request.Context(), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyEntry):
			writeError(c, http.StatusBadRequest, "entry content is required", err)
		default:
			writeError(c, http.StatusBadGateway, "journal analysis failed", err)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

func (h *Handler) handleProfile(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	traits, dominant := s.Profile()
	c.JSON(http.StatusOK, gin.H{
		"traits":        traits,
		"dominantType":  dominant,
		"selectionDone": s.SelectionDone(),
	})
}

// session resolves the caller's live session; on failure it writes the error
// response and reports false.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	userID, ok := auth.UserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing authenticated user", auth.ErrInvalidToken)
		return nil, false
	}

	s, err := h.sessions.Session(c.Request.Context(), userID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load session", err)
		return nil, false
	}
	return s, true
}

func newAuthResponse(result *auth.AuthResult) gin.H {
	return gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt.Format(time.RFC3339),
		"user": gin.H{
			"id":        result.User.ID,
			"username":  result.User.Username,
			"email":     result.User.Email,
			"createdAt": result.User.CreatedAt.Format(time.RFC3339),
			"updatedAt": result.User.UpdatedAt.Format(time.RFC3339),
		},
	}
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
