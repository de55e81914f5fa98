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

// Package api exposes the HTTP surface: authentication, account linking,
// message and label CRUD, preferences and AI assistance. Responses never
// include stored token material.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/mailfold/mailfold/internal/ai"
	"github.com/mailfold/mailfold/internal/auth"
	"github.com/mailfold/mailfold/internal/provider"
	"github.com/mailfold/mailfold/internal/store"
	"github.com/mailfold/mailfold/internal/syncer"
)

// Server wires the HTTP handlers to their collaborators.
type Server struct {
	store    *store.Store
	registry provider.Registry
	syncer   *syncer.Syncer
	ai       *ai.Service
	issuer   *auth.Issuer
	rdb      *redis.Client

	redirectBaseURL string
}

// Config holds the server's collaborators.
type Config struct {
	Store           *store.Store
	Registry        provider.Registry
	Syncer          *syncer.Syncer
	AI              *ai.Service
	Issuer          *auth.Issuer
	Redis           *redis.Client
	RedirectBaseURL string
}

// New creates the API server.
func New(cfg Config) *Server {
	return &Server{
		store:           cfg.Store,
		registry:        cfg.Registry,
		syncer:          cfg.Syncer,
		ai:              cfg.AI,
		issuer:          cfg.Issuer,
		rdb:             cfg.Redis,
		redirectBaseURL: cfg.RedirectBaseURL,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)

	api := r.Group("/api")
	api.POST("/register", s.register)
	api.POST("/login", s.login)

	authed := api.Group("", auth.Middleware(s.issuer))
	authed.GET("/me", s.me)

	authed.GET("/accounts", s.listAccounts)
	authed.GET("/oauth/:provider/authorize", s.oauthAuthorize)
	authed.POST("/oauth/:provider/callback", s.oauthCallback)
	authed.POST("/accounts/:id/sync", s.syncAccount)
	authed.POST("/accounts/:id/primary", s.setPrimaryAccount)
	authed.DELETE("/accounts/:id", s.disconnectAccount)

	authed.GET("/messages", s.listMessages)
	authed.POST("/messages", s.sendMessage)
	authed.GET("/messages/:id", s.getMessage)
	authed.POST("/messages/:id/read", s.markRead)
	authed.POST("/messages/:id/star", s.toggleStar)
	authed.POST("/messages/:id/archive", s.archiveMessage)
	authed.POST("/messages/:id/trash", s.trashMessage)
	authed.POST("/messages/:id/restore", s.restoreMessage)
	authed.DELETE("/messages/:id", s.deleteMessage)
	authed.POST("/messages/:id/labels/:labelID", s.attachLabel)
	authed.DELETE("/messages/:id/labels/:labelID", s.detachLabel)

	authed.GET("/labels", s.listLabels)
	authed.POST("/labels", s.createLabel)
	authed.DELETE("/labels/:id", s.deleteLabel)

	authed.GET("/preferences", s.getPreferences)
	authed.PATCH("/preferences", s.updatePreferences)

	authed.POST("/ai/priority", s.aiPriority)
	authed.POST("/ai/summarize", s.aiSummarize)
	authed.POST("/ai/reply", s.aiReply)

	return r
}

// health reports liveness of the server and its backing stores.
func (s *Server) health(c *gin.Context) {
	ctx := c.Request.Context()

	status := http.StatusOK
	checks := gin.H{"postgres": "ok", "redis": "ok"}

	if err := s.store.Ping(ctx); err != nil {
		checks["postgres"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, checks)
}

// pathID parses a numeric path parameter, writing a 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// internalError logs nothing here; handlers log at call sites where the
// context is known. The response body stays generic.
func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
