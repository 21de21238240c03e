// igbot - Local gateway API server
// Serves REST endpoints + WebSocket for live domain events
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/openig/igbot/pkg/client"
	"github.com/openig/igbot/pkg/config"
	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/chat"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/logger"
	"github.com/openig/igbot/pkg/modules"
	"github.com/openig/igbot/pkg/scheduler"
)

// Server is the HTTP gateway for dashboards and local tooling.
type Server struct {
	config      *config.Config
	client      *client.Client
	modules     *modules.Manager
	scheduler   *scheduler.Scheduler
	bus         domain.EventBus
	wsHub       *WSHub
	eventBridge *EventBridge
	startTime   time.Time
	server      *http.Server
	mu          sync.RWMutex
}

// NewServer creates the gateway server.
func NewServer(
	cfg *config.Config,
	cl *client.Client,
	mgr *modules.Manager,
	sched *scheduler.Scheduler,
	bus domain.EventBus,
) *Server {
	// Secure-by-default: auto-generate an API key if none is configured.
	// Random key per session, printed once at startup. Set gateway.api_key
	// or IGBOT_API_KEY for a persistent key.
	if cfg.Gateway.APIKey == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.Gateway.APIKey = hex.EncodeToString(raw)
			fmt.Println()
			fmt.Println("╔══════════════════════════════════════════════════════╗")
			fmt.Println("║            IGBOT API KEY (session token)             ║")
			fmt.Printf("║  %-52s  ║\n", cfg.Gateway.APIKey)
			fmt.Println("║  Set gateway.api_key in the config file to make      ║")
			fmt.Println("║  this permanent. Rotate it any time.                 ║")
			fmt.Println("╚══════════════════════════════════════════════════════╝")
			fmt.Println()
		}
	}
	s := &Server{
		config:    cfg,
		client:    cl,
		modules:   mgr,
		scheduler: sched,
		bus:       bus,
		startTime: time.Now(),
	}
	s.wsHub = NewWSHub(s)
	s.eventBridge = NewEventBridge(bus, s.wsHub)
	return s
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/system/info", s.handleSystemInfo)

	mux.HandleFunc("/api/chats", s.handleChats)
	mux.HandleFunc("/api/chats/", s.handleChatDetail)
	mux.HandleFunc("/api/users", s.handleUsers)
	mux.HandleFunc("/api/modules", s.handleModules)
	mux.HandleFunc("/api/scheduler/jobs", s.handleSchedulerJobs)

	mux.HandleFunc("/api/send", s.handleSend)

	// WebSocket for live events
	mux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(authMiddleware(s.config.Gateway.APIKey, mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "Gateway API server starting", map[string]interface{}{
		"addr": addr,
	})

	go s.wsHub.Run(ctx)
	go s.eventBridge.Run(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime)

	status := map[string]interface{}{
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
		"client":         s.client.Status(),
	}
	if s.modules != nil {
		status["modules"] = s.modules.Modules()
		status["prefix"] = s.modules.Prefix()
	}
	if s.scheduler != nil {
		status["scheduler_jobs"] = len(s.scheduler.Jobs())
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	hostname, _ := os.Hostname()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hostname":     hostname,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"cpus":         runtime.NumCPU(),
		"goroutines":   runtime.NumGoroutine(),
		"memory_mb":    float64(m.Alloc) / 1024 / 1024,
		"sys_mb":       float64(m.Sys) / 1024 / 1024,
		"gc_cycles":    m.NumGC,
		"gateway_host": s.config.Gateway.Host,
		"gateway_port": s.config.Gateway.Port,
	})
}

func chatSummary(ch *chat.Chat) map[string]interface{} {
	return map[string]interface{}{
		"id":           ch.ID(),
		"title":        ch.Title(),
		"participants": ch.UserIDs(),
		"pending":      ch.Pending(),
		"muted":        ch.Muted(),
		"group":        ch.IsGroup(),
		"messages":     ch.Messages.Len(),
	}
}

func messageSummary(m *message.Message) map[string]interface{} {
	return map[string]interface{}{
		"id":        m.ID(),
		"chat_id":   m.ChatID(),
		"author_id": m.AuthorID(),
		"kind":      m.Kind(),
		"text":      m.Text(),
		"timestamp": m.Timestamp().Time.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	result := make([]map[string]interface{}, 0, s.client.Chats.Len())
	for _, ch := range s.client.Chats.Array() {
		result = append(result, chatSummary(ch))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatDetail(w http.ResponseWriter, r *http.Request) {
	// /api/chats/{id} or /api/chats/{id}/messages
	rest := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat id required"})
		return
	}

	ch, ok := s.client.Chats.Get(domain.EntityID(id))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "chat not found"})
		return
	}

	if sub == "messages" {
		msgs := make([]map[string]interface{}, 0, ch.Messages.Len())
		for _, m := range ch.Messages.Array() {
			msgs = append(msgs, messageSummary(m))
		}
		writeJSON(w, http.StatusOK, msgs)
		return
	}

	writeJSON(w, http.StatusOK, chatSummary(ch))
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	result := make([]map[string]interface{}, 0, s.client.Users.Len())
	for _, u := range s.client.Users.Array() {
		result = append(result, map[string]interface{}{
			"id":        u.ID(),
			"username":  u.Username(),
			"full_name": u.FullName(),
			"private":   u.Private(),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	if s.modules == nil {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	result := make([]map[string]interface{}, 0)
	for _, cmd := range s.modules.Commands() {
		result = append(result, map[string]interface{}{
			"name":        cmd.Name,
			"aliases":     cmd.Aliases,
			"description": cmd.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prefix":   s.modules.Prefix(),
		"modules":  s.modules.Modules(),
		"commands": result,
	})
}

func (s *Server) handleSchedulerJobs(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Jobs())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	var req struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ChatID == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat_id and text required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	msg, err := s.client.SendText(ctx, domain.EntityID(req.ChatID), req.Text)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, messageSummary(msg))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
