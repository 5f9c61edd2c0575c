package signal

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hivechat/relay/internal/app"
	"github.com/hivechat/relay/internal/config"
	"github.com/hivechat/relay/internal/core"
)

type Controller struct {
	GW      *app.Gateway
	Limiter *MessageRateLimiter
	Cfg     *config.Config
}

func NewController(gw *app.Gateway, cfg *config.Config) *Controller {
	return &Controller{
		GW:      gw,
		Limiter: NewMessageRateLimiter(cfg.MsgRateLimit, cfg.MsgRateEvery),
		Cfg:     cfg,
	}
}

// WsConn wraps the websocket with a buffered outbound channel. TrySend
// never blocks: a full buffer surfaces as backpressure to the caller.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsConn(ws *websocket.Conn, buffer int) *WsConn {
	return &WsConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handshakeToken accepts the credential from the query string, the
// Authorization header or the session cookie set by the web client.
func handshakeToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if t, err := c.Cookie("token"); err == nil {
		return t
	}
	return ""
}

// HandleWS upgrades the connection, authenticates the handshake and
// starts the pumps. Verification failure is surfaced to the client as
// an error event before the transport closes.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsConn(ws, ctl.Cfg.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)

	cid, user, err := ctl.GW.Register(ctx, handshakeToken(c), conn, cancel)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("handshake refused")
		deadline := time.Now().Add(time.Second)
		_ = ws.SetWriteDeadline(deadline)
		_ = ws.WriteMessage(websocket.TextMessage, errFrame("authentication_failed", "authentication failed"))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"), deadline)
		conn.Close()
		cancel()
		return
	}

	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("user", string(user.ID)).Msg("new WS connection")
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cid, conn)
}
