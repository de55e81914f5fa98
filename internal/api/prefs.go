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

func (s *Server) getPreferences(c *gin.Context) {
	prefs, err := s.store.Preferences.GetOrCreate(c.Request.Context(), auth.UserID(c))
	if err != nil {
		slog.Error("load preferences", "error", err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

type updatePreferencesRequest struct {
	Timezone             *string `json:"timezone"`
	DarkModePreference   *string `json:"dark_mode_preference"`
	DarkModeEnabled      *bool   `json:"dark_mode_enabled"`
	EmailNotifications   *bool   `json:"email_notifications"`
	DesktopNotifications *bool   `json:"desktop_notifications"`
	WeeklyDigest         *bool   `json:"weekly_digest"`
	AutoArchiveRead      *bool   `json:"auto_archive_read"`
}

// updatePreferences applies a partial update over the current settings.
func (s *Server) updatePreferences(c *gin.Context) {
	var req updatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	prefs, err := s.store.Preferences.GetOrCreate(c.Request.Context(), auth.UserID(c))
	if err != nil {
		slog.Error("load preferences", "error", err)
		internalError(c)
		return
	}

	if req.Timezone != nil {
		prefs.Timezone = *req.Timezone
	}
	if req.DarkModePreference != nil {
		mode := models.DarkMode(*req.DarkModePreference)
		if mode != models.DarkModeAuto && mode != models.DarkModeManual {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dark_mode_preference must be auto or manual"})
			return
		}
		prefs.DarkModePreference = mode
	}
	if req.DarkModeEnabled != nil {
		prefs.DarkModeEnabled = *req.DarkModeEnabled
	}
	if req.EmailNotifications != nil {
		prefs.EmailNotifications = *req.EmailNotifications
	}
	if req.DesktopNotifications != nil {
		prefs.DesktopNotifications = *req.DesktopNotifications
	}
	if req.WeeklyDigest != nil {
		prefs.WeeklyDigest = *req.WeeklyDigest
	}
	if req.AutoArchiveRead != nil {
		prefs.AutoArchiveRead = *req.AutoArchiveRead
	}

	updated, err := s.store.Preferences.Update(c.Request.Context(), prefs)
	if err != nil {
		slog.Error("update preferences", "error", err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, updated)
}
