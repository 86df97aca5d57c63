package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lox/showcase/internal/assistant"
	"github.com/lox/showcase/internal/resolver"
	"github.com/lox/showcase/internal/sources"
	"github.com/lox/showcase/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sources are the shared upstream clients. Per-request resolvers bind the
// IP providers to the caller's address.
type Sources struct {
	Geocoder  sources.ReverseGeocoder
	PublicIP  sources.IPLookup
	Primary   *sources.IPAPI
	Secondary *sources.IPWho
	Weather   sources.WeatherService
}

type Config struct {
	Port     string
	Store    *store.Store // optional lookup log
	Sessions *assistant.Registry
	Sources  Sources

	// TrustProxy makes X-Forwarded-For and X-Real-IP authoritative for the
	// caller's address.
	TrustProxy  bool
	BatteryRoot string
}

type Server struct {
	cfg Config
	now func() time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Sessions == nil {
		cfg.Sessions = assistant.NewRegistry(nil, assistant.DefaultPersona, 0)
	}
	return &Server{cfg: cfg, now: time.Now}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/environment", s.handleEnvironment)
	mux.HandleFunc("POST /api/chat/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/chat/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/chat/sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/lookups", s.handleLookups)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// resolverFor builds a resolver for one request: the browser-reported fix
// stands in for the device sensor and the IP tiers locate the caller.
func (s *Server) resolverFor(r *http.Request) *resolver.Resolver {
	q := r.URL.Query()
	ip := s.clientIP(r)
	src := s.cfg.Sources

	cfg := resolver.Config{
		Sensor:   sources.NewReportedSensor(q.Get("lat"), q.Get("lon"), q.Get("accuracy")),
		Geocoder: src.Geocoder,
		PublicIP: src.PublicIP,
		Weather:  src.Weather,
	}
	if addr := sources.PublicAddr(ip); addr != "" {
		cfg.PublicIP = sources.StaticIP(addr)
	}
	if src.Primary != nil {
		cfg.Primary = src.Primary.For(ip)
	}
	if src.Secondary != nil {
		cfg.Secondary = src.Secondary.For(ip)
	}
	return resolver.New(cfg)
}

func (s *Server) clientIP(r *http.Request) string {
	if s.cfg.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
		if xr := r.Header.Get("X-Real-IP"); xr != "" {
			return strings.TrimSpace(xr)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"sessions": s.cfg.Sessions.Len(),
		"time":     s.now().UTC().Format(time.RFC3339),
	}
	if s.cfg.Store != nil {
		if err := s.cfg.Store.Ping(); err != nil {
			resp["status"] = "degraded"
			resp["store"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
