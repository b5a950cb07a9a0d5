package chats

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"chat-service/internal/config"
	"chat-service/internal/model"
	registrystore "chat-service/internal/registry/store"
	"chat-service/internal/security"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts the chat directory and message routes. Called by the
// serve command after store initialization so the store is available.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore, cfg *config.Config, auth gin.HandlerFunc) {
	g := r.Group("/chats", auth)

	g.GET("", func(c *gin.Context) {
		listChats(c, store)
	})
	g.POST("", func(c *gin.Context) {
		createChat(c, store)
	})
	g.GET("/:chatId", func(c *gin.Context) {
		getChat(c, store)
	})
	g.GET("/:chatId/messages", func(c *gin.Context) {
		listMessages(c, store, cfg)
	})
	g.POST("/:chatId/messages", func(c *gin.Context) {
		sendMessage(c, store)
	})
}

func listChats(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)

	summaries, err := store.ListChats(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

func createChat(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	var req struct {
		ParticipantIDs []string `json:"participantIds"`
		IsGroup        bool     `json:"isGroup"`
		GroupName      string   `json:"groupName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participants := make([]uuid.UUID, 0, len(req.ParticipantIDs))
	for _, raw := range req.ParticipantIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid participant ID %q", raw)})
			return
		}
		participants = append(participants, id)
	}

	summary, err := store.CreateOrGetChat(c.Request.Context(), userID, registrystore.CreateChatRequest{
		ParticipantIDs: participants,
		IsGroup:        req.IsGroup,
		GroupName:      req.GroupName,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func getChat(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat ID"})
		return
	}

	chat, err := store.GetChat(c.Request.Context(), chatID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func listMessages(c *gin.Context, store registrystore.ChatStore, cfg *config.Config) {
	userID := security.GetUserID(c)
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat ID"})
		return
	}
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", cfg.DefaultPageSize)

	pageResult, err := store.ListMessages(c.Request.Context(), chatID, userID, page, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResult)
}

func sendMessage(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat ID"})
		return
	}
	var req struct {
		Content     string `json:"content"`
		MessageType string `json:"messageType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgType := model.MessageTypeText
	if req.MessageType != "" {
		msgType = model.MessageType(req.MessageType)
	}

	msg, err := store.AppendMessage(c.Request.Context(), chatID, userID, req.Content, msgType)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
