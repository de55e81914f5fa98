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
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailfold/mailfold/internal/auth"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/provider"
	"github.com/mailfold/mailfold/internal/syncer"
)

func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.store.Accounts.List(c.Request.Context(), auth.UserID(c))
	if err != nil {
		slog.Error("list accounts", "error", err)
		internalError(c)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	c.JSON(http.StatusOK, accounts)
}

// redirectURI is where the provider sends the user back after consent.
// The frontend relays the code to the callback endpoint.
func (s *Server) redirectURI(p models.Provider) string {
	return fmt.Sprintf("%s/oauth/%s/callback", s.redirectBaseURL, p)
}

func (s *Server) oauthAuthorize(c *gin.Context) {
	p := models.Provider(c.Param("provider"))
	adapter, err := s.registry.For(p)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider is not supported or not configured"})
		return
	}

	authURL, state, err := adapter.AuthURL(s.redirectURI(p))
	if err != nil {
		slog.Error("build auth url", "provider", p, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not build authorization URL"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"auth_url": authURL, "state": state})
}

type oauthCallbackRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) oauthCallback(c *gin.Context) {
	p := models.Provider(c.Param("provider"))
	adapter, err := s.registry.For(p)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider is not supported or not configured"})
		return
	}

	var req oauthCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code is required"})
		return
	}

	bundle, err := adapter.Exchange(c.Request.Context(), req.Code, s.redirectURI(p))
	if err != nil {
		slog.Warn("oauth exchange failed", "provider", p, "kind", provider.KindOf(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "authorization code exchange failed"})
		return
	}

	account, err := s.store.Accounts.UpsertConnected(c.Request.Context(),
		auth.UserID(c), bundle.Email, p,
		bundle.AccessToken, bundle.RefreshToken, bundle.Expiry)
	if err != nil {
		slog.Error("upsert account", "provider", p, "error", err)
		internalError(c)
		return
	}

	c.JSON(http.StatusCreated, account)
}

func (s *Server) syncAccount(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	account, err := s.store.Accounts.Get(c.Request.Context(), auth.UserID(c), accountID)
	if err != nil {
		slog.Error("load account", "account_id", accountID, "error", err)
		internalError(c)
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	result, err := s.syncer.SyncAccount(c.Request.Context(), account)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, syncer.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "a sync pass is already running for this account"})
	case errors.Is(err, syncer.ErrAccountNotSyncable):
		c.JSON(http.StatusConflict, gin.H{"error": "account is disconnected or has sync disabled"})
	case provider.KindOf(err) == provider.KindRefresh:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account authorization expired, reconnect required"})
	default:
		slog.Warn("sync failed", "account_id", accountID, "kind", provider.KindOf(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "sync failed"})
	}
}

func (s *Server) setPrimaryAccount(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.store.Accounts.SetPrimary(c.Request.Context(), auth.UserID(c), accountID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "primary account updated"})
}

func (s *Server) disconnectAccount(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.store.Accounts.Disconnect(c.Request.Context(), auth.UserID(c), accountID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "account disconnected"})
}
