package handlers

import (
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/auth"
	"github.com/llmlab/llmlab/internal/logger"
	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/models"
	"go.uber.org/zap"
)

type AuthHandler struct {
	db        *gorm.DB
	jwt       *auth.JWTService
	exchanger auth.Exchanger
}

func NewAuthHandler(db *gorm.DB, jwt *auth.JWTService, exchanger auth.Exchanger) *AuthHandler {
	return &AuthHandler{db: db, jwt: jwt, exchanger: exchanger}
}

type githubLoginRequest struct {
	Code string `json:"code"`
}

// GitHubLogin exchanges an OAuth code, upserts the user by GitHub id, and
// returns a session token.
func (h *AuthHandler) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	var req githubLoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "authorization code is required")
		return
	}

	ghUser, err := h.exchanger.Exchange(r.Context(), req.Code)
	if err != nil {
		logger.Warn("github oauth exchange failed", zap.Error(err))
		respondError(w, http.StatusUnauthorized, "github authentication failed")
		return
	}

	var user models.User
	err = h.db.Where("github_id = ?", ghUser.ID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			GithubID:  ghUser.ID,
			Email:     ghUser.Email,
			Username:  ghUser.Login,
			AvatarURL: ghUser.AvatarURL,
			IsActive:  true,
		}
		if err := h.db.Create(&user).Error; err != nil {
			logger.Error("failed to create user", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to create user")
			return
		}
	} else if err != nil {
		logger.Error("failed to load user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	} else {
		// Refresh profile fields on every login.
		user.Email = ghUser.Email
		user.Username = ghUser.Login
		user.AvatarURL = ghUser.AvatarURL
		if err := h.db.Save(&user).Error; err != nil {
			logger.Warn("failed to refresh user profile", zap.Error(err))
		}
	}

	if !user.IsActive {
		respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	token, err := h.jwt.CreateToken(user.ID)
	if err != nil {
		logger.Error("failed to create token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondData(w, http.StatusOK, user)
}
