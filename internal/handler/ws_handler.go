package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rusikfsk/unichat/internal/audit"
	"github.com/rusikfsk/unichat/internal/config"
	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/hub"
	"github.com/rusikfsk/unichat/internal/idgen"
	"github.com/rusikfsk/unichat/internal/presence"
	"github.com/rusikfsk/unichat/internal/router"
	"github.com/rusikfsk/unichat/internal/service"
	"github.com/rusikfsk/unichat/pkg/log"
	"github.com/rusikfsk/unichat/pkg/middleware"
	"github.com/rusikfsk/unichat/pkg/response"
)

const defaultCommandTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub       *hub.Hub
	tracker   *presence.Tracker
	router    *router.Router
	users     service.UserService
	validator middleware.TokenValidator
	ids       idgen.Generator
	wsCfg     config.WebSocketConfig
	timeout   time.Duration
}

func NewWSHandler(
	h *hub.Hub,
	tracker *presence.Tracker,
	r *router.Router,
	users service.UserService,
	validator middleware.TokenValidator,
	wsCfg config.WebSocketConfig,
	commandTimeout time.Duration,
) *WSHandler {
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	return &WSHandler{
		hub:       h,
		tracker:   tracker,
		router:    r,
		users:     users,
		validator: validator,
		ids:       idgen.NewUUIDGenerator(),
		wsCfg:     wsCfg,
		timeout:   commandTimeout,
	}
}

// HandleWebSocket authenticates the upgrade request and starts the
// connection pumps.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := log.Ctx(ctx)

	claims, err := h.validator.ValidateToken(middleware.TokenFromRequest(r))
	if err != nil {
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", err.Error(), "websocket authentication failed")
		writeJSONError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing or invalid access token")
		return
	}

	if _, err := h.users.EnsureUser(ctx, claims.UserID, claims.Username); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to load user profile")
		writeJSONError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "failed to load user profile")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(h.ids.NewID(), claims.UserID, claims.Username, h.hub, conn, h.wsCfg)

	// The request context ends with this handler; the connection logger
	// lives on without it.
	connLogger := l.With().
		Str(log.FieldConnectionID, client.ID).
		Str(log.FieldUserID, client.UserID).
		Logger()
	connCtx := log.WithLogger(context.Background(), connLogger)

	go client.WritePump()

	if err := h.tracker.Connect(connCtx, client); err != nil {
		connLogger.Warn().Err(err).Msg("failed to register connection")
		h.tracker.Disconnect(connCtx, client)
		client.Close()
		return
	}
	audit.Log(connCtx, audit.ActionConnect, client.UserID, "websocket connected")

	go client.ReadPump(
		func(c *hub.Client, message []byte) {
			h.handleMessage(connLogger, c, message)
		},
		func(c *hub.Client) {
			h.tracker.Disconnect(connCtx, c)
			audit.Log(connCtx, audit.ActionDisconnect, c.UserID, "websocket disconnected")
		},
	)
}

func (h *WSHandler) handleMessage(logger zerolog.Logger, client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		h.reply(client, domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx, cancel := context.WithTimeout(client.Context(), h.timeout)
	defer cancel()
	ctx = log.WithLogger(ctx, logger)

	var err error
	switch base.Type {
	case domain.MsgTypeJoinConversation, domain.MsgTypeLeaveConversation, domain.MsgTypeTyping, domain.MsgTypeStopTyping:
		var cmd domain.ConversationCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			h.reply(client, domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid "+base.Type+" message"))
			return
		}
		err = h.dispatch(ctx, client, &cmd)

	case domain.MsgTypePing:
		h.reply(client, domain.NewPongMessage())

	default:
		h.reply(client, domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}

	if err != nil {
		if domain.ErrorCode(err) == domain.ErrCodeInternalError {
			logger.Error().Err(err).Str("command", base.Type).Msg("websocket command failed")
		} else {
			logger.Debug().Err(err).Str("command", base.Type).Msg("websocket command rejected")
		}
		h.reply(client, domain.ErrorMessageFrom(err))
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *hub.Client, cmd *domain.ConversationCommand) error {
	switch cmd.Type {
	case domain.MsgTypeJoinConversation:
		return h.router.JoinConversation(ctx, client, cmd.ConversationID)
	case domain.MsgTypeLeaveConversation:
		return h.router.LeaveConversation(ctx, client, cmd.ConversationID)
	case domain.MsgTypeTyping:
		return h.router.Typing(ctx, client, cmd.ConversationID)
	default:
		return h.router.StopTyping(ctx, client, cmd.ConversationID)
	}
}

// reply sends to the caller only. A connection that is already gone is
// ignored.
func (h *WSHandler) reply(client *hub.Client, event domain.Event) {
	_ = h.hub.SendTo(client, event)
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWebSocket)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response.Response{
		Success: false,
		Error:   &response.ErrorInfo{Code: code, Message: message},
	})
}
