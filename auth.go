package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"lg/keto-go-api/internal/store"
)

// dummyHash is a pre-computed bcrypt hash used when a login username isn't found.
// Running bcrypt against it (instead of returning early) keeps response time
// constant, preventing timing-based username enumeration.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost)

// minPasswordLen is the shortest password register accepts.
const minPasswordLen = 8

// register creates a user with an empty biometric profile and returns its token.
// POST /api/register (public).
func (h *Handler) register(c *gin.Context) {
	var body registerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "username, a valid email and password are required")
		return
	}
	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" || len(body.Username) > 150 {
		apiError(c, http.StatusBadRequest, "username must be 1 to 150 characters")
		return
	}
	if len(body.Password) < minPasswordLen {
		apiError(c, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		h.fail(c, "register", err, "failed to hash password")
		return
	}
	u, err := h.store.CreateUser(c.Request.Context(), store.NewUser{
		Username:     body.Username,
		Email:        body.Email,
		PasswordHash: string(hash),
		AuthToken:    uuid.New().String(),
	})
	if errors.Is(err, store.ErrConflict) {
		apiError(c, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		h.fail(c, "register", err, "failed to create user")
		return
	}

	h.logger.Info("[register] user created", zap.Int("user_id", u.ID))
	c.JSON(http.StatusCreated, tokenResponse{Token: u.AuthToken, UserID: u.ID})
}

// login verifies username/password and returns the user's auth token.
// POST /api/login (public).
func (h *Handler) login(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	u, lookupErr := h.store.UserByUsername(c.Request.Context(), body.Username)

	// Always run bcrypt to keep response time constant regardless of whether the
	// username was found, which prevents username enumeration.
	hashToCheck := string(dummyHash)
	if lookupErr == nil {
		hashToCheck = u.Password
	}
	compareErr := bcrypt.CompareHashAndPassword([]byte(hashToCheck), []byte(body.Password))

	if lookupErr != nil {
		if !errors.Is(lookupErr, store.ErrNotFound) {
			h.logger.Error("[login] user lookup failed", zap.Error(lookupErr))
		}
		apiError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if compareErr != nil {
		apiError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	c.JSON(http.StatusOK, tokenResponse{Token: u.AuthToken, UserID: u.ID})
}

// authMiddleware validates the Bearer token and sets user_id on the context.
// Tokens issued longer than tokenMaxAge ago are rejected until rotated.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			apiError(c, http.StatusUnauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		u, err := h.store.UserByToken(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				h.logger.Error("[authMiddleware] token lookup failed", zap.Error(err))
			}
			apiError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}
		if h.tokenMaxAge > 0 && h.now().Sub(u.AuthTokenCreatedAt) > h.tokenMaxAge {
			apiError(c, http.StatusUnauthorized, "token expired")
			c.Abort()
			return
		}

		c.Set("user_id", u.ID)
		c.Next()
	}
}
