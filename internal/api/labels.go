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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailfold/mailfold/internal/auth"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/store"
)

const defaultLabelColor = "#3b82f6"

func (s *Server) listLabels(c *gin.Context) {
	labels, err := s.store.Labels.List(c.Request.Context(), auth.UserID(c))
	if err != nil {
		slog.Error("list labels", "error", err)
		internalError(c)
		return
	}
	if labels == nil {
		labels = []models.Label{}
	}
	c.JSON(http.StatusOK, labels)
}

type createLabelRequest struct {
	Name  string `json:"name" binding:"required,max=100"`
	Color string `json:"color"`
}

func (s *Server) createLabel(c *gin.Context) {
	var req createLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label name is required"})
		return
	}
	if req.Color == "" {
		req.Color = defaultLabelColor
	}

	label, err := s.store.Labels.Create(c.Request.Context(), auth.UserID(c), req.Name, req.Color)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateLabel) {
			c.JSON(http.StatusConflict, gin.H{"error": "a label with this name already exists"})
			return
		}
		slog.Error("create label", "error", err)
		internalError(c)
		return
	}

	c.JSON(http.StatusCreated, label)
}

func (s *Server) deleteLabel(c *gin.Context) {
	labelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.store.Labels.Delete(c.Request.Context(), auth.UserID(c), labelID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "label not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "label deleted"})
}
