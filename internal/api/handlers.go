package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/tcgvault/messaging/internal/messaging"
)

const (
	actionFilter            = "filter"
	actionSendMessage       = "send_message"
	actionStartConversation = "start_conversation"
	actionMarkRead          = "mark_read"
)

type request struct {
	Action         string  `json:"action"`
	ConversationID string  `json:"conversationId"`
	RecipientID    string  `json:"recipientId"`
	ListingID      *string `json:"listingId"`
	Content        *string `json:"content"`
	MessageID      string  `json:"messageId"`
	IdempotencyKey string  `json:"idempotencyKey"`
}

type filterParams struct {
	Content *string `json:"content" validate:"required"`
}

type sendMessageParams struct {
	ConversationID string  `json:"conversationId" validate:"required,uuid"`
	Content        *string `json:"content" validate:"required"`
	IdempotencyKey string  `json:"idempotencyKey" validate:"omitempty,max=128"`
}

type startConversationParams struct {
	RecipientID string  `json:"recipientId" validate:"required,uuid"`
	ListingID   *string `json:"listingId" validate:"omitempty,uuid"`
}

type markReadParams struct {
	ConversationID string `json:"conversationId" validate:"required,uuid"`
}

// requiredFields names what each action needs in validation errors.
var requiredFields = map[string]string{
	actionFilter:            "content",
	actionSendMessage:       "conversationId and content",
	actionStartConversation: "recipientId",
	actionMarkRead:          "conversationId",
}

func (s *Server) handleMessaging(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)

	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.ListingID != nil && strings.TrimSpace(*req.ListingID) == "" {
		req.ListingID = nil
	}

	switch req.Action {
	case actionFilter:
		s.handleFilter(c, req)
	case actionSendMessage:
		s.handleSendMessage(c, req)
	case actionStartConversation:
		s.handleStartConversation(c, req)
	case actionMarkRead:
		s.handleMarkRead(c, req)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action: " + req.Action})
	}
}

func (s *Server) handleFilter(c *gin.Context, req request) {
	params := filterParams{Content: req.Content}
	if !s.valid(c, req.Action, params) {
		return
	}

	res := s.svc.Filter(*params.Content)
	body := gin.H{
		"success":         true,
		"isFiltered":      res.WasFiltered,
		"filteredContent": res.Text,
	}
	if res.Reason != "" {
		body["reason"] = res.Reason
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSendMessage(c *gin.Context, req request) {
	params := sendMessageParams{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		IdempotencyKey: req.IdempotencyKey,
	}
	if !s.valid(c, req.Action, params) {
		return
	}

	res, err := s.svc.SendMessage(c.Request.Context(), messaging.SendMessageInput{
		CallerID:       c.GetString(callerKey),
		ConversationID: params.ConversationID,
		Content:        *params.Content,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		s.fail(c, req, err)
		return
	}

	body := gin.H{
		"success":     true,
		"message":     res.Message,
		"wasFiltered": res.WasFiltered,
	}
	if res.Reason != "" {
		body["filterReason"] = res.Reason
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleStartConversation(c *gin.Context, req request) {
	params := startConversationParams{RecipientID: req.RecipientID, ListingID: req.ListingID}
	if !s.valid(c, req.Action, params) {
		return
	}

	id, isNew, err := s.svc.StartConversation(c.Request.Context(), c.GetString(callerKey), params.RecipientID, params.ListingID)
	if err != nil {
		s.fail(c, req, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"conversationId": id,
		"isNew":          isNew,
	})
}

func (s *Server) handleMarkRead(c *gin.Context, req request) {
	params := markReadParams{ConversationID: req.ConversationID}
	if !s.valid(c, req.Action, params) {
		return
	}

	if err := s.svc.MarkRead(c.Request.Context(), c.GetString(callerKey), params.ConversationID); err != nil {
		s.fail(c, req, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// valid writes a 400 and returns false when params fail validation.
func (s *Server) valid(c *gin.Context, action string, params interface{}) bool {
	err := s.validate.Struct(params)
	if err == nil {
		return true
	}

	msg := requiredFields[action] + " required for " + action
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() != "required" {
				msg = fmt.Sprintf("%s must be a valid %s for %s", fe.Field(), fe.Tag(), action)
				break
			}
		}
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
	return false
}

// fail logs err with request context, never the message content, and writes
// the error envelope.
func (s *Server) fail(c *gin.Context, req request, err error) {
	status := statusFor(err)
	log.Printf("api: correlation=%s action=%s conversation=%s status=%d: %v",
		c.GetString(correlationKey), req.Action, req.ConversationID, status, err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, messaging.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, messaging.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, messaging.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
