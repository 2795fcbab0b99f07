package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/otpchat/internal/auth"
	"github.com/wuwenbin0122/otpchat/internal/chat"
	"github.com/wuwenbin0122/otpchat/internal/db"
	"github.com/wuwenbin0122/otpchat/internal/models"
)

// UserFinder resolves the authenticated user for /user/me.
type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

type Handler struct {
	authService *auth.Service
	chatService *chat.Service
	users       UserFinder
	logger      *zap.Logger
}

func NewHandler(authService *auth.Service, chatService *chat.Service, users UserFinder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		authService: authService,
		chatService: chatService,
		users:       users,
		logger:      logger.Named("api"),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	userGroup := router.Group("/user")
	userGroup.POST("/login", h.handleLogin)
	userGroup.POST("/verify", h.handleVerify)
	userGroup.GET("/me", h.requireSession(), h.handleMe)

	chatGroup := router.Group("/chat", h.requireSession())
	chatGroup.POST("/new", h.handleCreateChat)
	chatGroup.GET("/all", h.handleListChats)
	chatGroup.POST("/:id", h.handleAddConversation)
	chatGroup.GET("/:id", h.handleGetConversations)
	chatGroup.DELETE("/:id", h.handleDeleteChat)
}

type loginRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	OTP         otpValue `json:"otp"`
	VerifyToken string   `json:"verifyToken"`
}

type conversationRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// otpValue accepts the passcode as a JSON string or number.
type otpValue string

func (o *otpValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*o = otpValue(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("otp must be a string or number")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return errors.New("otp must be an integer")
	}
	*o = otpValue(n.String())
	return nil
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, kindBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email)
	if err != nil {
		h.writeServiceError(c, err, "failed to start login")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     result.Message,
		"verifyToken": result.VerifyToken,
	})
}

func (h *Handler) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, kindBadRequest, "invalid payload", err)
		return
	}

	if strings.TrimSpace(string(req.OTP)) == "" || strings.TrimSpace(req.VerifyToken) == "" {
		h.writeError(c, http.StatusBadRequest, kindBadRequest, "otp and verifyToken are required", errMissingFields)
		return
	}

	result, err := h.authService.Verify(c.Request.Context(), string(req.OTP), req.VerifyToken)
	if err != nil {
		h.writeServiceError(c, err, "failed to verify code")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   result.Message,
		"user":      result.User,
		"token":     result.Token,
		"expiresAt": result.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) handleMe(c *gin.Context) {
	user, err := h.users.FindUserByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, kindNotFound, "user not found", err)
			return
		}
		h.writeServiceError(c, err, "failed to load user")
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *Handler) handleCreateChat(c *gin.Context) {
	created, err := h.chatService.Create(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err, "failed to create chat")
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *Handler) handleListChats(c *gin.Context) {
	chats, err := h.chatService.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err, "failed to list chats")
		return
	}

	c.JSON(http.StatusOK, chats)
}

func (h *Handler) handleAddConversation(c *gin.Context) {
	var req conversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, kindBadRequest, "invalid payload", err)
		return
	}

	turn, err := h.chatService.AddConversation(c.Request.Context(), c.Param("id"), req.Question, req.Answer)
	if err != nil {
		h.writeServiceError(c, err, "failed to add conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": turn.Conversation,
		"updatedChat":  turn.Chat,
	})
}

func (h *Handler) handleGetConversations(c *gin.Context) {
	conversations, err := h.chatService.Conversations(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err, "failed to load conversations")
		return
	}

	c.JSON(http.StatusOK, conversations)
}

func (h *Handler) handleDeleteChat(c *gin.Context) {
	if err := h.chatService.Delete(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		h.writeServiceError(c, err, "failed to delete chat")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "chat deleted"})
}
