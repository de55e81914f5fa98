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

	"github.com/gin-gonic/gin"

	"github.com/mailfold/mailfold/internal/auth"
	"github.com/mailfold/mailfold/internal/models"
)

type aiMessageRequest struct {
	MessageID int64 `json:"message_id" binding:"required"`
}

type aiReplyRequest struct {
	MessageID int64  `json:"message_id" binding:"required"`
	Tone      string `json:"tone"`
	Context   string `json:"context"`
}

// loadAIMessage fetches the target message for an AI endpoint.
func (s *Server) loadAIMessage(c *gin.Context, messageID int64) *models.Message {
	msg, err := s.store.Messages.Get(c.Request.Context(), auth.UserID(c), messageID)
	if err != nil {
		slog.Error("get message", "error", err)
		internalError(c)
		return nil
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return nil
	}
	return msg
}

// aiPriority reclassifies one message with the model and persists the
// result.
func (s *Server) aiPriority(c *gin.Context) {
	var req aiMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id is required"})
		return
	}

	msg := s.loadAIMessage(c, req.MessageID)
	if msg == nil {
		return
	}

	priority := s.ai.DetectPriority(c.Request.Context(), msg.Subject, msg.Body, msg.Sender)

	updated, err := s.store.Messages.SetPriority(c.Request.Context(), auth.UserID(c), msg.ID, priority)
	if err != nil || updated == nil {
		slog.Error("persist priority", "message_id", msg.ID, "error", err)
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"priority": priority, "message": updated})
}

func (s *Server) aiSummarize(c *gin.Context) {
	var req aiMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id is required"})
		return
	}

	msg := s.loadAIMessage(c, req.MessageID)
	if msg == nil {
		return
	}

	summary, err := s.ai.Summarize(c.Request.Context(), msg.Subject, msg.Body, msg.Sender)
	if err != nil {
		slog.Warn("summarize failed", "message_id", msg.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "summary generation failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) aiReply(c *gin.Context) {
	var req aiReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id is required"})
		return
	}

	msg := s.loadAIMessage(c, req.MessageID)
	if msg == nil {
		return
	}

	reply, err := s.ai.SuggestReply(c.Request.Context(), msg.Subject, msg.Body, msg.Sender, req.Tone, req.Context)
	if err != nil {
		slog.Warn("reply generation failed", "message_id", msg.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "reply generation failed"})
		return
	}

	c.JSON(http.StatusOK, reply)
}
