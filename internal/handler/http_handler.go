package handler

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/presence"
	"github.com/rusikfsk/unichat/internal/service"
	"github.com/rusikfsk/unichat/pkg/log"
	"github.com/rusikfsk/unichat/pkg/middleware"
	"github.com/rusikfsk/unichat/pkg/response"
)

const (
	uploadFormField = "file"
	currentUserKey  = "current_user"
)

// Handler serves the REST API.
type Handler struct {
	chat           service.ChatService
	tracker        *presence.Tracker
	authMiddleware *middleware.AuthMiddleware

	redirectDownloads bool
}

// NewHandler creates a new HTTP handler.
func NewHandler(chat service.ChatService, tracker *presence.Tracker, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		chat:           chat,
		tracker:        tracker,
		authMiddleware: authMiddleware,
	}
}

// WithDownloadRedirect makes attachment downloads redirect to the blob
// store's URL instead of streaming the content.
func (h *Handler) WithDownloadRedirect(enabled bool) *Handler {
	h.redirectDownloads = enabled
	return h
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware.RequireAuth(), h.ensureUser)
	{
		conversations := api.Group("/conversations")
		{
			conversations.GET("", h.ListConversations)
			conversations.POST("", h.CreateConversation)
			conversations.GET("/:id", h.GetConversation)
			conversations.DELETE("/:id", h.DeleteConversation)

			conversations.GET("/:id/members", h.ListMembers)
			conversations.POST("/:id/members", h.AddMember)
			conversations.PATCH("/:id/members/:userId", h.UpdateMember)
			conversations.DELETE("/:id/members/:userId", h.RemoveMember)
			conversations.POST("/:id/leave", h.LeaveConversation)
			conversations.POST("/:id/transfer-ownership", h.TransferOwnership)

			conversations.GET("/:id/messages", h.GetHistory)
			conversations.POST("/:id/messages", h.SendMessage)
			conversations.POST("/:id/read", h.MarkRead)
		}

		api.DELETE("/messages/:id", h.DeleteMessage)

		api.POST("/attachments", h.UploadAttachment)
		api.GET("/attachments/:id", h.DownloadAttachment)

		api.GET("/users/me", h.GetProfile)
		api.PUT("/users/me", h.UpdateProfile)
		api.GET("/users/:id/presence", h.GetPresence)
	}
}

// ensureUser provisions the caller's local profile on first contact.
func (h *Handler) ensureUser(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		c.Abort()
		return
	}

	user, err := h.chat.EnsureUser(ctx, userID, middleware.GetUsername(c))
	if err != nil {
		writeError(c, err, "failed to load user profile")
		c.Abort()
		return
	}
	c.Set(currentUserKey, user)
	c.Next()
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req domain.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	conv, err := h.chat.CreateConversation(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		writeError(c, err, "failed to create conversation")
		return
	}
	response.Created(c, conv)
}

func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.chat.GetConversation(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to get conversation")
		return
	}
	response.Success(c, conv)
}

// ListConversations returns the caller's conversations, most recently
// active first, with unread counts.
func (h *Handler) ListConversations(c *gin.Context) {
	summaries, err := h.chat.ListConversations(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to list conversations")
		return
	}
	if summaries == nil {
		summaries = []domain.ConversationSummary{}
	}
	response.Success(c, summaries)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	if err := h.chat.DeleteConversation(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		writeError(c, err, "failed to delete conversation")
		return
	}
	response.NoContent(c)
}

func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.chat.ListMembers(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to list members")
		return
	}
	response.Success(c, members)
}

func (h *Handler) AddMember(c *gin.Context) {
	var req domain.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	m, err := h.chat.AddMember(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.UserID)
	if err != nil {
		writeError(c, err, "failed to add member")
		return
	}
	response.Created(c, m)
}

func (h *Handler) UpdateMember(c *gin.Context) {
	var req domain.UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	m, err := h.chat.UpdateMember(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("userId"), &req)
	if err != nil {
		writeError(c, err, "failed to update member")
		return
	}
	response.Success(c, m)
}

func (h *Handler) RemoveMember(c *gin.Context) {
	if err := h.chat.RemoveMember(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("userId")); err != nil {
		writeError(c, err, "failed to remove member")
		return
	}
	response.NoContent(c)
}

func (h *Handler) LeaveConversation(c *gin.Context) {
	if err := h.chat.LeaveConversation(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		writeError(c, err, "failed to leave conversation")
		return
	}
	response.NoContent(c)
}

func (h *Handler) TransferOwnership(c *gin.Context) {
	var req domain.TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.chat.TransferOwnership(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.NewOwnerID); err != nil {
		writeError(c, err, "failed to transfer ownership")
		return
	}
	response.NoContent(c)
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	view, err := h.chat.SendMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		writeError(c, err, "failed to send message")
		return
	}
	response.Created(c, view)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.chat.DeleteMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		writeError(c, err, "failed to delete message")
		return
	}
	response.NoContent(c)
}

// MarkRead accepts an empty body as "read everything".
func (h *Handler) MarkRead(c *gin.Context) {
	var req domain.MarkReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	res, err := h.chat.MarkRead(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		writeError(c, err, "failed to mark read")
		return
	}
	response.Success(c, res)
}

func (h *Handler) GetHistory(c *gin.Context) {
	var q domain.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "take must be an integer")
		return
	}

	page, err := h.chat.GetHistory(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &q)
	if err != nil {
		writeError(c, err, "failed to get history")
		return
	}
	response.Success(c, page)
}

func (h *Handler) UploadAttachment(c *gin.Context) {
	fh, err := c.FormFile(uploadFormField)
	if err != nil {
		response.BadRequest(c, "multipart field \"file\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to open uploaded file")
		response.InternalError(c, "failed to read upload")
		return
	}
	defer f.Close()

	view, err := h.chat.UploadAttachment(c.Request.Context(), middleware.GetUserID(c), &service.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		writeError(c, err, "failed to upload attachment")
		return
	}
	response.Created(c, view)
}

func (h *Handler) DownloadAttachment(c *gin.Context) {
	if h.redirectDownloads {
		url, err := h.chat.AttachmentURL(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if err != nil {
			writeError(c, err, "failed to locate attachment")
			return
		}
		c.Redirect(http.StatusFound, url)
		return
	}

	a, body, err := h.chat.OpenAttachment(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to open attachment")
		return
	}
	defer body.Close()

	headers := map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}),
	}
	c.DataFromReader(http.StatusOK, a.Size, a.ContentType, body, headers)
}

func (h *Handler) GetProfile(c *gin.Context) {
	user, _ := c.Get(currentUserKey)
	response.Success(c, user)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.chat.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), middleware.GetUsername(c), &req)
	if err != nil {
		writeError(c, err, "failed to update profile")
		return
	}
	response.Success(c, user)
}

func (h *Handler) GetPresence(c *gin.Context) {
	p, err := h.tracker.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to get presence")
		return
	}
	response.Success(c, p)
}

// writeError maps a classified service error onto a JSON error response.
// Unclassified errors are logged and reported as fallback.
func writeError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, service.ErrAttachmentTooLarge) {
		response.TooLarge(c, err.Error())
		return
	}

	switch domain.ErrorCode(err) {
	case domain.ErrCodeUnauthorized:
		response.Unauthorized(c, domain.PublicMessage(err))
	case domain.ErrCodeForbidden:
		response.Forbidden(c, domain.PublicMessage(err))
	case domain.ErrCodeNotFound:
		response.NotFound(c, domain.PublicMessage(err))
	case domain.ErrCodeBadRequest:
		response.BadRequest(c, domain.PublicMessage(err))
	case domain.ErrCodeConflict:
		response.Conflict(c, domain.PublicMessage(err))
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldPath, c.FullPath()).Msg(fallback)
		response.InternalError(c, fallback)
	}
}
