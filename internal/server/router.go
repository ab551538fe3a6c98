package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devpadhq/devpad-server/internal/notes"
	"github.com/devpadhq/devpad-server/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const userIDContextKey = "devpad_user_id"

var (
	errMissingUserService   = errors.New("user service dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates bearer tokens for authenticated users.
type TokenManager interface {
	IssueToken(ctx context.Context, userID uint64) (string, int64, error)
	ValidateToken(token string) (uint64, error)
}

// Dependencies wires the API layer to the services behind it.
type Dependencies struct {
	UserService  *users.Service
	TokenManager TokenManager
	NotesService *notes.Service
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router serving the HTTP JSON API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.UserService == nil {
		return nil, errMissingUserService
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		users:        deps.UserService,
		tokens:       deps.TokenManager,
		notesService: deps.NotesService,
		logger:       logger,
	}

	router.GET("/api/ping", handler.handlePing)
	router.POST("/api/auth/register", handler.handleRegister)
	router.POST("/api/auth/login", handler.handleLogin)

	protected := router.Group("/api/notes")
	protected.Use(handler.authorizeRequest)
	protected.GET("", handler.handleListNotes)
	protected.POST("", handler.handleCreateNote)
	protected.PUT("/:id", handler.handleUpdateNote)
	protected.DELETE("/:id", handler.handleDeleteNote)

	return router, nil
}

type httpHandler struct {
	users        *users.Service
	tokens       TokenManager
	notesService *notes.Service
	logger       *zap.Logger
}

// requestLogger tags every request with a UUID, echoes it in X-Request-ID and
// logs the outcome.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Writer.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		logger.Info("request handled",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (h *httpHandler) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong from DevPad!"})
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	userID, err := h.users.Register(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrMissingCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "email_and_password_required"})
		case errors.Is(err, users.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "user_already_exists"})
		default:
			h.logger.Error("registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		}
		return
	}

	token, _, err := h.tokens.IssueToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusCreated, tokenResponsePayload{AccessToken: token})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	userID, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bad_credentials"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	token, _, err := h.tokens.IssueToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{AccessToken: token})
}

type notePayload struct {
	Title     *string  `json:"title"`
	ContentMD *string  `json:"content_md"`
	Language  *string  `json:"language"`
	Favorite  *bool    `json:"favorite"`
	Tags      []string `json:"tags"`
}

func (p notePayload) fields() notes.Fields {
	return notes.Fields{
		Title:     p.Title,
		ContentMD: p.ContentMD,
		Language:  p.Language,
		Favorite:  p.Favorite,
		Tags:      p.Tags,
	}
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}

	views, err := h.notesService.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list notes", zap.Error(err))
		h.respondStorageError(c, "list_failed", err)
		return
	}

	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}

	var request notePayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	noteID, err := h.notesService.Create(c.Request.Context(), userID, request.fields())
	if err != nil {
		h.logger.Error("failed to create note", zap.Error(err))
		h.respondStorageError(c, "create_failed", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": noteID})
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}

	var request notePayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		// A missing note is still 404 and a foreign note 403 even when the
		// body does not parse.
		if ownErr := h.notesService.EnsureOwned(c.Request.Context(), userID, noteID); ownErr != nil {
			h.writeNoteError(c, "update_failed", ownErr)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.notesService.Update(c.Request.Context(), userID, noteID, request.fields()); err != nil {
		h.writeNoteError(c, "update_failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"msg": "Updated"})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}

	if err := h.notesService.Delete(c.Request.Context(), userID, noteID); err != nil {
		h.writeNoteError(c, "delete_failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"msg": "Deleted"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func (h *httpHandler) requestUserID(c *gin.Context) (uint64, bool) {
	value, exists := c.Get(userIDContextKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	userID, ok := value.(uint64)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	return userID, true
}

// parseNoteID rejects non-numeric path ids as not found, matching the route
// contract for absent resources.
func parseNoteID(c *gin.Context) (uint64, bool) {
	noteID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return 0, false
	}
	return noteID, true
}

func (h *httpHandler) writeNoteError(c *gin.Context, fallback string, err error) {
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, notes.ErrNoteForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		h.logger.Error("note operation failed", zap.Error(err))
		h.respondStorageError(c, fallback, err)
	}
}

// respondStorageError surfaces unclassified failures as a 500 with the notes
// service operation code when one is attached, and no further detail.
func (h *httpHandler) respondStorageError(c *gin.Context, fallback string, err error) {
	var serviceErr *notes.ServiceError
	if errors.As(err, &serviceErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback, "code": serviceErr.Code()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}
