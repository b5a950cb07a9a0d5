package messages

import (
	"errors"
	"net/http"

	"chat-service/internal/config"
	registrystore "chat-service/internal/registry/store"
	"chat-service/internal/security"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts the message-scoped routes.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore, cfg *config.Config, auth gin.HandlerFunc) {
	g := r.Group("/messages", auth)

	g.POST("/:messageId/seen", func(c *gin.Context) {
		markSeen(c, store, cfg)
	})
}

func markSeen(c *gin.Context, store registrystore.ChatStore, cfg *config.Config) {
	userID := security.GetUserID(c)
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	err = store.MarkSeen(c.Request.Context(), messageID, userID, cfg.SeenRequiresMembership)
	if err != nil {
		var notFound *registrystore.NotFoundError
		var forbidden *registrystore.ForbiddenError
		switch {
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
		case errors.As(err, &forbidden):
			c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
