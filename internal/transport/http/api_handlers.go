package http

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatbroker/internal/core"
	"chatbroker/internal/service/chat"
)

// APIHandlers provides HTTP handlers for the REST endpoints.
type APIHandlers struct {
	chat *chat.Service
	hub  *core.Hub
	log  *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(chatService *chat.Service, hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		chat: chatService,
		hub:  hub,
		log:  logger,
	}
}

// CreateUserRequest represents the registration request body.
type CreateUserRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// CreateGroupRequest represents the group-creation request body.
type CreateGroupRequest struct {
	Name      string `json:"name" binding:"required"`
	CreatorID string `json:"creator_id" binding:"required"`
}

// JoinGroupRequest represents the join-group request body.
type JoinGroupRequest struct {
	Name   string `json:"name" binding:"required"`
	UserID string `json:"user_id" binding:"required"`
}

// JoinGroupResponse reports whether the membership actually grew.
type JoinGroupResponse struct {
	Added bool `json:"added"`
}

// StatsResponse reports the online-user snapshot.
type StatsResponse struct {
	OnlineUsers []string `json:"online_users"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health reports liveness.
// GET /health
func (h *APIHandlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// CreateUser registers a new identity.
// POST /api/users
func (h *APIHandlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create user request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, err := h.chat.CreateUser(c.Request.Context(), req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "display name already taken"})
		case errors.Is(err, chat.ErrDisplayNameRequired):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "display name is required"})
		default:
			h.log.Error().Err(err).Str("display_name", req.DisplayName).Msg("failed to create user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

// FindUserByName resolves a display name (exact match).
// GET /api/users/by-name/:name
func (h *APIHandlers) FindUserByName(c *gin.Context) {
	user, err := h.chat.FindUserByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to find user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

// SearchUsers matches display names by substring.
// GET /api/users/search?q=
func (h *APIHandlers) SearchUsers(c *gin.Context) {
	users, err := h.chat.SearchUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toUserResponses(users))
}

// ListUsers returns every registered user.
// GET /api/users
func (h *APIHandlers) ListUsers(c *gin.Context) {
	users, err := h.chat.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toUserResponses(users))
}

// CreateGroup creates a group owned by the given creator.
// POST /api/groups
func (h *APIHandlers) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	group, err := h.chat.CreateGroup(c.Request.Context(), req.Name, req.CreatorID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrGroupExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "group already exists"})
		case errors.Is(err, chat.ErrInvalidGroupName):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		case errors.Is(err, chat.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "creator not found"})
		default:
			h.log.Error().Err(err).Str("group", req.Name).Msg("failed to create group")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, toGroupResponse(group))
}

// JoinGroup adds a user to a group.
// POST /api/groups/join
func (h *APIHandlers) JoinGroup(c *gin.Context) {
	var req JoinGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid join group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	added, err := h.chat.JoinGroup(c.Request.Context(), req.Name, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrGroupNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "group not found"})
		case errors.Is(err, chat.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		default:
			h.log.Error().Err(err).Str("group", req.Name).Msg("failed to join group")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, JoinGroupResponse{Added: added})
}

// ListGroupsOf returns the groups a user belongs to.
// GET /api/users/:id/groups
func (h *APIHandlers) ListGroupsOf(c *gin.Context) {
	groups, err := h.chat.ListGroupsOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list user groups")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toGroupResponses(groups))
}

// ListGroups returns every group.
// GET /api/groups
func (h *APIHandlers) ListGroups(c *gin.Context) {
	groups, err := h.chat.ListGroups(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list groups")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toGroupResponses(groups))
}

// GetHistory returns the conversation with a user or group.
// GET /api/users/:id/history?chat_id=&is_group=&limit=
func (h *APIHandlers) GetHistory(c *gin.Context) {
	chatID := c.Query("chat_id")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "chat_id is required"})
		return
	}
	isGroup := c.Query("is_group") == "true"
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	msgs, err := h.chat.GetHistory(c.Request.Context(), c.Param("id"), chatID, isGroup, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toMessageResponses(msgs))
}

// Stats reports the online-user snapshot.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	online := h.hub.Online()
	sort.Strings(online)
	c.JSON(http.StatusOK, StatsResponse{OnlineUsers: online})
}
