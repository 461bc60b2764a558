package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vietanh2810/eventfinder-api/internal/api/handler/v1/response"
	"github.com/vietanh2810/eventfinder-api/internal/chat"
	"github.com/vietanh2810/eventfinder-api/internal/domain"
)

const maxHistoryLimit = 200

type ChatConnector interface {
	Connect(ctx context.Context, identity domain.Identity, rawEventID string) (*chat.Session, error)
}

type ChatService interface {
	Authorize(ctx context.Context, identity domain.Identity, eventID uint) (bool, error)
	RecentHistory(ctx context.Context, eventID uint, limit int) ([]domain.ChatMessage, error)
}

type ChatHandler struct {
	connector ChatConnector
	svc       ChatService
	uSvc      UserService
	client    chat.ClientConfig
	upgrader  websocket.Upgrader
}

func NewChatHandler(connector ChatConnector, svc ChatService, uSvc UserService, client chat.ClientConfig, allowedOrigins []string) *ChatHandler {
	return &ChatHandler{
		connector: connector,
		svc:       svc,
		uSvc:      uSvc,
		client:    client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// An empty list accepts every origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err != nil || u.Host == "" {
			return false
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket godoc
// @Summary      Join an event chat room
// @Description  Upgrades to a websocket once the caller is the host or an attendee going to the event.
// @Description  The token may be passed as ?token= since browsers cannot set headers on the handshake.
// @Description  Server frames: {"type":"history","messages":[...]} then {"type":"message",...}. Client frames: {"message":"..."}.
// @Tags         chat
// @Param        eventID  path      int     true   "event ID"
// @Param        token    query     string  false  "JWT"
// @Success      101      {string}  string  "Switching Protocols"
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /ws/chat/event/{eventID} [get]
func (h *ChatHandler) HandleWebSocket(ctx *gin.Context) {
	identity, respErr := identityFromContext(ctx, h.uSvc)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	session, err := h.connector.Connect(ctx.Request.Context(), identity, ctx.Param("eventID"))
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrMissingRoom):
			response.RenderErr(ctx, response.ErrBadRequest(err))
		case errors.Is(err, chat.ErrAccessDenied):
			response.RenderErr(ctx, response.ErrPermissionDenied(err))
		default:
			err = fmt.Errorf("v1.HandleWebSocket -> h.connector.Connect -> %w", err)
			response.RenderErr(ctx, response.ErrInternalServerError(err))
		}
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// The upgrader has already answered the request.
		session.Close(ctx.Request.Context())
		return
	}

	chat.NewClient(conn, session, h.client).Serve(ctx.Request.Context())
}

// HandleGetChatMessages godoc
// @Summary      Event chat history
// @Description  Latest messages of the event chat, oldest first. Same access rule as the websocket.
// @Tags         chat
// @Produce      json
// @Param        eventID  path      int  true   "event ID"
// @Param        limit    query     int  false  "at most 200, defaults to 50"
// @Success      200      {object}  chat.HistoryFrame
// @Failure      400      {object}  response.Err
// @Failure      401      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventID}/messages [get]
// @Security BearerAuth
func (h *ChatHandler) HandleGetChatMessages(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx, h.uSvc)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	eventID, respErr := parseIDParam(ctx, "eventID")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	limit := chat.DefaultHistoryLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.RenderErr(ctx, response.ErrBadRequest(fmt.Errorf("invalid limit %q", raw)))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	allowed, err := h.svc.Authorize(ctx.Request.Context(), domain.IdentityOf(user), eventID)
	if err != nil {
		err = fmt.Errorf("v1.HandleGetChatMessages -> h.svc.Authorize -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}
	if !allowed {
		response.RenderErr(ctx, response.ErrPermissionDenied(chat.ErrAccessDenied))
		return
	}

	messages, err := h.svc.RecentHistory(ctx.Request.Context(), eventID, limit)
	if err != nil {
		err = fmt.Errorf("v1.HandleGetChatMessages -> h.svc.RecentHistory -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, chat.NewHistoryFrame(messages))
}
