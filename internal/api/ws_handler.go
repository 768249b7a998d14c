package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"jobboard/internal/api/middleware"
	"jobboard/internal/notify"
)

// WsHandler 负责 WebSocket 鉴权，并把 notify 频道的消息转发给在线用户。
type WsHandler struct {
	redisClient    redis.UniversalClient
	validator      middleware.TokenValidator
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(redisClient redis.UniversalClient, validator middleware.TokenValidator, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WsHandler{
		redisClient:    redisClient,
		validator:      validator,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(h.allowedOrigins) == 0 {
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	// Types 为空时接收全部消息类型。
	Types []string `json:"types,omitempty"`
}

// wsSubscription 是认证成功后的订阅参数。
type wsSubscription struct {
	userID uint
	accept map[string]bool
}

var knownNotificationTypes = map[string]bool{
	notify.TypeApplicationStatus:     true,
	notify.TypeSavedSearchMatches:    true,
	notify.TypeRecommendationsUpdate: true,
}

// acceptTypes 校验客户端订阅的消息类型；nil 表示不过滤。
func acceptTypes(types []string) (map[string]bool, error) {
	if len(types) == 0 {
		return nil, nil
	}
	accept := make(map[string]bool, len(types))
	for _, t := range types {
		if !knownNotificationTypes[t] {
			return nil, fmt.Errorf("unknown notification type %q", t)
		}
		accept[t] = true
	}
	return accept, nil
}

// decodeNotification 解析频道消息，丢弃格式错误、未知类型或未订阅的消息。
func decodeNotification(payload string, accept map[string]bool) (notify.Message, bool) {
	var msg notify.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return notify.Message{}, false
	}
	if !knownNotificationTypes[msg.Type] {
		return notify.Message{}, false
	}
	if accept != nil && !accept[msg.Type] {
		return notify.Message{}, false
	}
	return msg, true
}

// HandleConnection 负责升级连接并启动读写循环。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	baseLog := h.logger.With(
		slog.String("client_ip", c.ClientIP()),
	)

	subCh := make(chan wsSubscription, 1)
	errCh := make(chan error, 1)

	go h.readLoop(ctx, conn, subCh, errCh, cancel, baseLog)

	var sub wsSubscription
	select {
	case <-ctx.Done():
		return
	case err := <-errCh:
		if err != nil {
			baseLog.Warn("websocket authentication failed", slog.Any("error", err))
		}
		return
	case sub = <-subCh:
	}

	userLog := baseLog.With(slog.Uint64("user_id", uint64(sub.userID)))
	go h.subscribeLoop(ctx, conn, sub, errCh, cancel, userLog)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			userLog.Info("websocket connection closed", slog.Any("error", err))
		} else {
			userLog.Info("websocket connection closed")
		}
	}
}

func (h *WsHandler) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	subCh chan<- wsSubscription,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	authenticated := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			writeClose(conn, websocket.CloseAbnormalClosure, "read error")
			errCh <- fmt.Errorf("read message: %w", err)
			cancel()
			return
		}

		if !authenticated {
			var authMsg wsAuthMessage
			if err := json.Unmarshal(message, &authMsg); err != nil {
				writeClose(conn, websocket.ClosePolicyViolation, "invalid auth payload")
				errCh <- fmt.Errorf("decode auth payload: %w", err)
				cancel()
				return
			}
			if authMsg.Type != "auth" || authMsg.Token == "" {
				writeClose(conn, websocket.ClosePolicyViolation, "auth required")
				errCh <- fmt.Errorf("invalid auth message")
				cancel()
				return
			}

			accept, err := acceptTypes(authMsg.Types)
			if err != nil {
				writeClose(conn, websocket.ClosePolicyViolation, "unknown notification type")
				errCh <- err
				cancel()
				return
			}

			claims, err := h.validator.ValidateAccessToken(authMsg.Token)
			if err != nil {
				writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
				errCh <- fmt.Errorf("validate token: %w", err)
				cancel()
				return
			}

			authenticated = true
			subCh <- wsSubscription{userID: claims.UserID, accept: accept}
			log.Info("websocket authenticated", slog.Uint64("user_id", uint64(claims.UserID)))
			continue
		}

		// 认证后的客户端消息被忽略，读循环只用于检测断开。
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func (h *WsHandler) subscribeLoop(
	ctx context.Context,
	conn *websocket.Conn,
	sub wsSubscription,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	channel := notify.Channel(sub.userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Info("subscribed to redis channel", slog.String("channel", channel))

	ch := pubsub.Channel()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				errCh <- fmt.Errorf("pubsub channel closed")
				cancel()
				return
			}

			note, ok := decodeNotification(msg.Payload, sub.accept)
			if !ok {
				log.Debug("drop notification", slog.String("channel", channel))
				continue
			}
			log.Debug("forwarding notification", slog.String("type", note.Type))
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(note); err != nil {
				errCh <- fmt.Errorf("write message: %w", err)
				cancel()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				cancel()
				return
			}
		}
	}
}
