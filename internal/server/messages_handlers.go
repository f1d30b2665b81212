package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/campusconnect/backend/internal/messages"
	"github.com/campusconnect/backend/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type sendMessagePayload struct {
	Text  string          `json:"text"`
	Media *messages.Media `json:"media"`
}

func (h *httpHandler) handleListConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	summaries, err := h.messages.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *httpHandler) handleGetConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	page, limit := pagination(c)
	conversation, err := h.messages.GetConversation(c.Request.Context(), userID, c.Param("userId"), page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// handleSendMessage stores a message without pushing it to live connections.
func (h *httpHandler) handleSendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var payload sendMessagePayload
	storedFile := ""
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploads.maxBytes)
		file, err := c.FormFile("file")
		switch {
		case err == nil:
			media, path, saveErr := h.uploads.save(c, file)
			if errors.Is(saveErr, errUploadsDisabled) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "uploads_disabled"})
				return
			}
			if saveErr != nil {
				h.logger.Error("failed to store upload", zap.Error(saveErr))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
				return
			}
			payload.Media = &media
			storedFile = path
		case errors.Is(err, http.ErrMissingFile):
		default:
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload_too_large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		payload.Text = c.PostForm("text")
	} else if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	view, err := h.messages.Deliver(c.Request.Context(), messages.DeliverRequest{
		SenderID:   userID,
		ReceiverID: c.Param("userId"),
		Text:       payload.Text,
		Media:      payload.Media,
		Path:       metrics.PathHTTP,
	})
	if err != nil {
		if storedFile != "" {
			_ = os.Remove(storedFile)
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return page, limit
}
