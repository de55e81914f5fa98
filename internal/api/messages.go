// Copyright (c) 2026 Mailfold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailfold/mailfold/internal/auth"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/store"
)

// queryBool reads an optional boolean query parameter.
func queryBool(c *gin.Context, name string) *bool {
	raw, ok := c.GetQuery(name)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func (s *Server) listMessages(c *gin.Context) {
	f := store.Filter{
		IsRead:     queryBool(c, "is_read"),
		IsStarred:  queryBool(c, "is_starred"),
		IsArchived: queryBool(c, "is_archived"),
		IsTrashed:  queryBool(c, "is_trashed"),
	}
	if p := c.Query("priority"); p != "" {
		if !models.ValidPriority(p) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be high, normal or low"})
			return
		}
		f.Priority = models.Priority(p)
	}
	if raw := c.Query("label_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid label_id"})
			return
		}
		f.LabelID = id
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			f.Limit = n
		}
	}

	messages, err := s.store.Messages.List(c.Request.Context(), auth.UserID(c), f)
	if err != nil {
		slog.Error("list messages", "error", err)
		internalError(c)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

func (s *Server) getMessage(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID := auth.UserID(c)

	msg, err := s.store.Messages.Get(c.Request.Context(), userID, messageID)
	if err != nil {
		slog.Error("get message", "error", err)
		internalError(c)
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	labels, err := s.store.Labels.ListForMessage(c.Request.Context(), userID, messageID)
	if err != nil {
		slog.Error("list message labels", "error", err)
		internalError(c)
		return
	}
	if labels == nil {
		labels = []models.Label{}
	}

	c.JSON(http.StatusOK, gin.H{"message": msg, "labels": labels})
}

type sendMessageRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	CC        string `json:"cc"`
	BCC       string `json:"bcc"`
}

// sendMessage records a locally authored message. The sender address
// comes from the user's primary account when one exists.
func (s *Server) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient is required"})
		return
	}
	userID := auth.UserID(c)

	sender := ""
	accounts, err := s.store.Accounts.List(c.Request.Context(), userID)
	if err != nil {
		slog.Error("list accounts", "error", err)
		internalError(c)
		return
	}
	for _, a := range accounts {
		if a.IsPrimary {
			sender = a.EmailAddress
			break
		}
	}
	if sender == "" {
		user, err := s.store.Users.GetByID(c.Request.Context(), userID)
		if err != nil || user == nil {
			internalError(c)
			return
		}
		sender = user.Email
	}

	now := time.Now()
	msg := &models.Message{
		UserID:     userID,
		Sender:     sender,
		Recipient:  req.Recipient,
		CC:         req.CC,
		BCC:        req.BCC,
		Subject:    req.Subject,
		Body:       req.Body,
		Priority:   models.PriorityNormal,
		IsRead:     true,
		IsSent:     true,
		ReceivedAt: &now,
	}
	if err := s.store.Messages.Insert(c.Request.Context(), msg); err != nil {
		slog.Error("insert message", "error", err)
		internalError(c)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// messageAction wraps the update endpoints that share the same
// load-modify-respond shape.
func (s *Server) messageAction(c *gin.Context, do func(userID, messageID int64) (*models.Message, error)) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	msg, err := do(auth.UserID(c), messageID)
	if err != nil {
		slog.Error("update message", "message_id", messageID, "error", err)
		internalError(c)
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) markRead(c *gin.Context) {
	s.messageAction(c, func(userID, messageID int64) (*models.Message, error) {
		return s.store.Messages.MarkRead(c.Request.Context(), userID, messageID)
	})
}

func (s *Server) toggleStar(c *gin.Context) {
	s.messageAction(c, func(userID, messageID int64) (*models.Message, error) {
		return s.store.Messages.ToggleStar(c.Request.Context(), userID, messageID)
	})
}

func (s *Server) archiveMessage(c *gin.Context) {
	s.messageAction(c, func(userID, messageID int64) (*models.Message, error) {
		return s.store.Messages.Archive(c.Request.Context(), userID, messageID)
	})
}

func (s *Server) trashMessage(c *gin.Context) {
	s.messageAction(c, func(userID, messageID int64) (*models.Message, error) {
		return s.store.Messages.Trash(c.Request.Context(), userID, messageID, time.Now())
	})
}

func (s *Server) restoreMessage(c *gin.Context) {
	s.messageAction(c, func(userID, messageID int64) (*models.Message, error) {
		return s.store.Messages.Restore(c.Request.Context(), userID, messageID)
	})
}

func (s *Server) deleteMessage(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.store.Messages.Delete(c.Request.Context(), auth.UserID(c), messageID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "message deleted"})
}

func (s *Server) attachLabel(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	labelID, ok := pathID(c, "labelID")
	if !ok {
		return
	}

	if err := s.store.Labels.Attach(c.Request.Context(), auth.UserID(c), messageID, labelID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message or label not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "label attached"})
}

func (s *Server) detachLabel(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	labelID, ok := pathID(c, "labelID")
	if !ok {
		return
	}

	if err := s.store.Labels.Detach(c.Request.Context(), auth.UserID(c), messageID, labelID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message or label not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "label detached"})
}
