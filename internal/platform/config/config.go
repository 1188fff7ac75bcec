package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selects the Transport the directory client runs against.
type Backend string

const (
	BackendGoogle Backend = "google"
	BackendMemory Backend = "memory"
)

// DefaultScope is the OAuth scope granting read/write access to shared contacts.
const DefaultScope = "https://www.google.com/m8/feeds/"

// Server captures process level configuration.
type Server struct {
	Addr       string
	LogLevel   string
	AdminToken string

	Directory   Directory
	Credentials Credentials
	Duplicates  Duplicates
	Redis       RedisConfig

	HTTPClientTimeout time.Duration
}

// Directory locates the remote address book.
type Directory struct {
	Backend  Backend
	Domain   string
	BaseURL  string
	PageSize int
	MaxPages int
}

// Credentials configures the service-account token flow.
type Credentials struct {
	ServiceAccountFile string
	AdminEmail         string
	Scope              string
}

// Duplicates configures the duplicate scan.
type Duplicates struct {
	Threshold float64
	Workers   int
}

// RedisConfig configures the optional shared token cache. An empty URL
// disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var p parser
	cfg := Server{
		Addr:       envOr("CONTACTS_ADDR", ":8080"),
		LogLevel:   envOr("LOG_LEVEL", "info"),
		AdminToken: os.Getenv("CONTACTS_ADMIN_TOKEN"),
		Directory: Directory{
			Backend:  Backend(envOr("CONTACTS_BACKEND", string(BackendGoogle))),
			Domain:   envOr("WORKSPACE_DOMAIN", "example.com"),
			BaseURL:  os.Getenv("CONTACTS_BASE_URL"),
			PageSize: p.int("CONTACTS_PAGE_SIZE", 0),
			MaxPages: p.int("CONTACTS_MAX_PAGES", 10),
		},
		Credentials: Credentials{
			ServiceAccountFile: envOr("SERVICE_ACCOUNT_FILE", "credentials.json"),
			AdminEmail:         os.Getenv("ADMIN_EMAIL"),
			Scope:              envOr("CONTACTS_SCOPE", DefaultScope),
		},
		Duplicates: Duplicates{
			Threshold: p.float("DUPLICATE_THRESHOLD", 0.8),
			Workers:   p.int("DUPLICATE_WORKERS", 0),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		HTTPClientTimeout: p.duration("HTTP_CLIENT_TIMEOUT", 30*time.Second),
	}
	if p.err != nil {
		return Server{}, p.err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (s Server) Validate() error {
	switch s.Directory.Backend {
	case BackendGoogle:
		if s.Credentials.AdminEmail == "" {
			return fmt.Errorf("ADMIN_EMAIL is required for the %s backend", BackendGoogle)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("CONTACTS_BACKEND must be %q or %q, got %q", BackendGoogle, BackendMemory, s.Directory.Backend)
	}
	if s.Directory.Domain == "" {
		return fmt.Errorf("WORKSPACE_DOMAIN must not be empty")
	}
	if s.Directory.PageSize < 0 || s.Directory.MaxPages < 1 {
		return fmt.Errorf("CONTACTS_PAGE_SIZE must be >= 0 and CONTACTS_MAX_PAGES >= 1")
	}
	if s.Duplicates.Threshold < 0 || s.Duplicates.Threshold > 1 {
		return fmt.Errorf("DUPLICATE_THRESHOLD must be within [0, 1], got %v", s.Duplicates.Threshold)
	}
	if s.Duplicates.Workers < 0 {
		return fmt.Errorf("DUPLICATE_WORKERS must not be negative")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parser keeps the first conversion error so FromEnv can report it once.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d
}
