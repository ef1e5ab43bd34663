package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lattice/internal/config"
	"lattice/internal/gateway"
	wstransport "lattice/internal/transport/ws"
)

// WebSocketHandler upgrades /ws requests, enforcing origin and pre-auth
// connection budgets before handing the connection to the transport layer.
type WebSocketHandler struct {
	gw         *gateway.Gateway
	cfg        config.WebSocketConfig
	ipResolver *ClientIPResolver
	budget     *preAuthBudget
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

func NewWebSocketHandler(gw *gateway.Gateway, cfg config.WebSocketConfig, ipResolver *ClientIPResolver, log *slog.Logger) *WebSocketHandler {
	if log == nil {
		log = slog.Default()
	}
	if ipResolver == nil {
		ipResolver, _ = NewClientIPResolver(nil)
	}

	h := &WebSocketHandler{
		gw:         gw,
		cfg:        cfg,
		ipResolver: ipResolver,
		budget:     newPreAuthBudget(cfg.MaxUnauthenticatedPerIP, cfg.MaxUnauthenticatedGlobal),
		log:        log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientIP := h.ipResolver.Resolve(r)
	if !h.budget.reserve(clientIP) {
		writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many unauthenticated connections")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.budget.releaseReservation(clientIP)
		h.log.Debug("websocket upgrade failed", "component", "api/websocket", "error", err, "remote", clientIP)
		return
	}

	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() { h.budget.releaseReservation(clientIP) })
	}

	// The reservation only guards the handshake window; Serve blocks for the
	// connection's whole lifetime, authenticated or not, so release once the
	// unauthenticated timeout has elapsed or when Serve returns, whichever
	// comes first; authenticating does not release it earlier.
	// wstransport.Serve owns closing conn either way.
	go func() {
		time.Sleep(h.unauthTimeout())
		release()
	}()

	wstransport.Serve(context.Background(), h.gw, conn, h.log)
	release()
}

func (h *WebSocketHandler) unauthTimeout() time.Duration {
	if h.cfg.UnauthenticatedTimeout > 0 {
		return h.cfg.UnauthenticatedTimeout
	}
	return 10 * time.Second
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if isLoopbackOrigin(origin) {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if originMatchesAllowed(origin, allowed) {
			return true
		}
	}
	return false
}

func originMatchesAllowed(origin, allowed string) bool {
	if allowed == origin {
		return true
	}
	if strings.HasSuffix(allowed, "*") {
		return strings.HasPrefix(origin, strings.TrimSuffix(allowed, "*"))
	}
	return false
}

func isLoopbackOrigin(origin string) bool {
	for _, host := range []string{"://127.0.0.1", "://localhost", "://[::1]"} {
		if strings.Contains(origin, host) {
			return true
		}
	}
	return false
}

// preAuthBudget caps concurrently in-flight, not-yet-authenticated
// connections per IP and globally, so a connection flood can't exhaust file
// descriptors before spec.md's 10s auth timeout ever gets a chance to fire.
type preAuthBudget struct {
	mu         sync.Mutex
	perIP      int
	global     int
	byIP       map[string]int
	totalCount int
}

func newPreAuthBudget(perIP, global int) *preAuthBudget {
	return &preAuthBudget{perIP: perIP, global: global, byIP: make(map[string]int)}
}

func (b *preAuthBudget) reserve(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.global > 0 && b.totalCount >= b.global {
		return false
	}
	if b.perIP > 0 && b.byIP[ip] >= b.perIP {
		return false
	}

	b.byIP[ip]++
	b.totalCount++
	return true
}

func (b *preAuthBudget) releaseReservation(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.byIP[ip] > 0 {
		b.byIP[ip]--
		b.totalCount--
	}
	if b.byIP[ip] == 0 {
		delete(b.byIP, ip)
	}
}
