package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	SFU     SFUConfig     `yaml:"sfu"`
}

type ServerConfig struct {
	Name              string          `yaml:"name"`
	Host              string          `yaml:"host"`
	Port              int             `yaml:"port"`
	BaseURL           string          `yaml:"base_url"`
	TrustedProxyCIDRs []string        `yaml:"trusted_proxy_cidrs"`
	WebSocket         WebSocketConfig `yaml:"websocket"`
}

type WebSocketConfig struct {
	AllowedOrigins           []string      `yaml:"allowed_origins"`
	MaxUnauthenticatedPerIP  int           `yaml:"max_unauthenticated_per_ip"`
	MaxUnauthenticatedGlobal int           `yaml:"max_unauthenticated_global"`
	UnauthenticatedTimeout   time.Duration `yaml:"unauthenticated_timeout"`
}

// GatewayConfig holds gateway tuning values. Only SignalRateWindow and
// SignalRateBudget are passed to internal/gateway; GracePeriod,
// IdlePresenceTimeout and MaxSessionsPerUser are loaded and defaulted but
// not read by the gateway, which uses its GracePeriod constant and the
// settings collaborator's idle threshold instead.
type GatewayConfig struct {
	GracePeriod         time.Duration `yaml:"grace_period"`
	IdlePresenceTimeout time.Duration `yaml:"idle_presence_timeout"`
	SignalRateWindow    time.Duration `yaml:"signal_rate_window"`
	SignalRateBudget    int           `yaml:"signal_rate_budget"`
	MaxSessionsPerUser  int           `yaml:"max_sessions_per_user"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret      string        `yaml:"jwt_secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

type SFUConfig struct {
	PublicIP string     `yaml:"publicIP"`
	MinPort  uint16     `yaml:"minPort"`
	MaxPort  uint16     `yaml:"maxPort"`
	TURN     TURNConfig `yaml:"turn"`
}

type TURNConfig struct {
	Host   string        `yaml:"host"`   // coturn hostname/IP
	Port   int           `yaml:"port"`   // coturn listening port (default 3478)
	Secret string        `yaml:"secret"` // coturn static-auth-secret
	TTL    time.Duration `yaml:"ttl"`    // credential lifetime (default 24h)
}

func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file — continue with env vars + defaults
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envUint16(key string, dst *uint16) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(v, 10, 16); err == nil {
			*dst = uint16(i)
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		*dst = origins
	}
}

func (c *Config) applyEnvOverrides() {
	// Server
	envString("LATTICE_SERVER_NAME", &c.Server.Name)
	envString("LATTICE_SERVER_BASE_URL", &c.Server.BaseURL)
	envStringSlice("LATTICE_TRUSTED_PROXY_CIDRS", &c.Server.TrustedProxyCIDRs)
	envStringSlice("LATTICE_WS_ALLOWED_ORIGINS", &c.Server.WebSocket.AllowedOrigins)
	envInt("LATTICE_WS_MAX_UNAUTH_PER_IP", &c.Server.WebSocket.MaxUnauthenticatedPerIP)
	envInt("LATTICE_WS_MAX_UNAUTH_GLOBAL", &c.Server.WebSocket.MaxUnauthenticatedGlobal)
	envDuration("LATTICE_WS_UNAUTH_TIMEOUT", &c.Server.WebSocket.UnauthenticatedTimeout)

	// Gateway
	envDuration("LATTICE_GRACE_PERIOD", &c.Gateway.GracePeriod)
	envDuration("LATTICE_IDLE_PRESENCE_TIMEOUT", &c.Gateway.IdlePresenceTimeout)
	envDuration("LATTICE_SIGNAL_RATE_WINDOW", &c.Gateway.SignalRateWindow)
	envInt("LATTICE_SIGNAL_RATE_BUDGET", &c.Gateway.SignalRateBudget)
	envInt("LATTICE_MAX_SESSIONS_PER_USER", &c.Gateway.MaxSessionsPerUser)

	// Store
	envString("LATTICE_STORE_PATH", &c.Store.Path)

	// Auth
	envString("LATTICE_JWT_SECRET", &c.Auth.JWTSecret)
	envDuration("LATTICE_ACCESS_TOKEN_TTL", &c.Auth.AccessTokenTTL)

	// SFU
	envString("LATTICE_SFU_PUBLIC_IP", &c.SFU.PublicIP)
	envUint16("LATTICE_SFU_MIN_PORT", &c.SFU.MinPort)
	envUint16("LATTICE_SFU_MAX_PORT", &c.SFU.MaxPort)

	// TURN
	if v := os.Getenv("LATTICE_TURN_ADDR"); v != "" {
		if host, portStr, err := net.SplitHostPort(v); err == nil {
			c.SFU.TURN.Host = host
			if port, err := strconv.Atoi(portStr); err == nil {
				c.SFU.TURN.Port = port
			}
		}
	}
	envString("LATTICE_TURN_SECRET", &c.SFU.TURN.Secret)
	envDuration("LATTICE_TURN_TTL", &c.SFU.TURN.TTL)
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Server.WebSocket.MaxUnauthenticatedPerIP < 0 {
		return fmt.Errorf("server.websocket.max_unauthenticated_per_ip must be >= 0")
	}
	if c.Server.WebSocket.MaxUnauthenticatedGlobal < 0 {
		return fmt.Errorf("server.websocket.max_unauthenticated_global must be >= 0")
	}
	if c.Server.WebSocket.UnauthenticatedTimeout < 0 {
		return fmt.Errorf("server.websocket.unauthenticated_timeout must be >= 0")
	}
	if c.Gateway.GracePeriod < 0 {
		return fmt.Errorf("gateway.grace_period must be >= 0")
	}
	if c.Gateway.SignalRateBudget < 0 {
		return fmt.Errorf("gateway.signal_rate_budget must be >= 0")
	}
	if c.Gateway.MaxSessionsPerUser < 0 {
		return fmt.Errorf("gateway.max_sessions_per_user must be >= 0")
	}
	for _, origin := range c.Server.WebSocket.AllowedOrigins {
		if origin == "null" {
			continue
		}
		if strings.Contains(origin, "*") {
			if strings.Count(origin, "*") > 1 || !strings.HasSuffix(origin, "*") {
				return fmt.Errorf("server.websocket.allowed_origins wildcard must be a single trailing *: %q", origin)
			}
			trimmed := strings.TrimSuffix(origin, "*")
			if trimmed == "" {
				return fmt.Errorf("server.websocket.allowed_origins wildcard prefix cannot be empty")
			}
			continue
		}
		if _, err := url.ParseRequestURI(origin); err != nil {
			return fmt.Errorf("server.websocket.allowed_origins contains invalid origin %q: %w", origin, err)
		}
	}

	for _, cidr := range c.Server.TrustedProxyCIDRs {
		trimmed := strings.TrimSpace(cidr)
		if trimmed == "" {
			continue
		}
		if ip := net.ParseIP(trimmed); ip != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(trimmed); err != nil {
			return fmt.Errorf("server.trusted_proxy_cidrs contains invalid CIDR or IP %q: %w", trimmed, err)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Name == "" {
		c.Server.Name = "Lattice Gateway"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	if len(c.Server.WebSocket.AllowedOrigins) == 0 {
		if u, err := url.Parse(c.Server.BaseURL); err == nil && u.Scheme != "" && u.Host != "" {
			c.Server.WebSocket.AllowedOrigins = []string{u.Scheme + "://" + u.Host, "null"}
		}
	}
	if c.Server.WebSocket.MaxUnauthenticatedPerIP == 0 {
		c.Server.WebSocket.MaxUnauthenticatedPerIP = 20
	}
	if c.Server.WebSocket.MaxUnauthenticatedGlobal == 0 {
		c.Server.WebSocket.MaxUnauthenticatedGlobal = 200
	}
	if c.Server.WebSocket.UnauthenticatedTimeout == 0 {
		c.Server.WebSocket.UnauthenticatedTimeout = 10 * time.Second
	}
	if c.Gateway.GracePeriod == 0 {
		c.Gateway.GracePeriod = 15 * time.Second
	}
	if c.Gateway.IdlePresenceTimeout == 0 {
		c.Gateway.IdlePresenceTimeout = 15 * time.Minute
	}
	if c.Gateway.SignalRateWindow == 0 {
		c.Gateway.SignalRateWindow = 5 * time.Second
	}
	if c.Gateway.SignalRateBudget == 0 {
		c.Gateway.SignalRateBudget = 400
	}
	if c.Gateway.MaxSessionsPerUser == 0 {
		c.Gateway.MaxSessionsPerUser = 10
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data/lattice.db"
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.SFU.MinPort == 0 {
		c.SFU.MinPort = 50000
	}
	if c.SFU.MaxPort == 0 {
		c.SFU.MaxPort = 50100
	}
	if c.SFU.TURN.Port == 0 {
		c.SFU.TURN.Port = 3478
	}
	if c.SFU.TURN.TTL == 0 {
		c.SFU.TURN.TTL = 24 * time.Hour
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
