// Package gateway is the front door of Voicegate: one HTTP server carrying
// the static browser client, health and metrics endpoints, and the /ws
// signalling socket that drives everything else.
//
// Each accepted WebSocket gets its own handler goroutine and its own
// [session.Session] plus conversation orchestrator; the Server itself holds
// only shared, connection-independent collaborators (engines, the model
// host client, the tool registry).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/echohall/voicegate/internal/config"
	"github.com/echohall/voicegate/internal/convo"
	"github.com/echohall/voicegate/internal/health"
	"github.com/echohall/voicegate/internal/observe"
	"github.com/echohall/voicegate/internal/session"
	"github.com/echohall/voicegate/internal/tools"
	"github.com/echohall/voicegate/pkg/provider/llm"
	"github.com/echohall/voicegate/pkg/provider/llm/anyllm"
	"github.com/echohall/voicegate/pkg/provider/llm/ollama"
	"github.com/echohall/voicegate/pkg/provider/llm/openai"
	"github.com/echohall/voicegate/pkg/provider/stt"
	"github.com/echohall/voicegate/pkg/provider/tts"
	"github.com/echohall/voicegate/pkg/rtc"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
)

const (
	// heartbeatInterval is the WebSocket ping period.
	heartbeatInterval = 20 * time.Second

	// offerTimeout bounds SDP answer generation, ICE gathering included.
	offerTimeout = 15 * time.Second

	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is the Voicegate HTTP front end. Construct with NewServer, then
// either Run for a managed listener or Handler to mount elsewhere.
type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics

	sttEng   stt.Engine
	ttsEng   tts.Engine
	ollama   *ollama.Client
	registry *tools.Registry

	// httpClient serves TURN credential fetches.
	httpClient *http.Client

	// newSession builds the media plane for one connection; tests swap in
	// a stub to drive the signalling loop without a peer connection.
	newSession func(ice []rtc.ICEServer, log *slog.Logger) (mediaSession, error)
}

// NewServer wires the gateway from its collaborators. The tool registry is
// shared by every connection; tools must be safe for concurrent use.
func NewServer(cfg *config.Config, sttEng stt.Engine, ttsEng tts.Engine, ollamaClient *ollama.Client, registry *tools.Registry, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		log:        slog.Default(),
		metrics:    observe.DefaultMetrics(),
		sttEng:     sttEng,
		ttsEng:     ttsEng,
		ollama:     ollamaClient,
		registry:   registry,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	s.newSession = func(ice []rtc.ICEServer, log *slog.Logger) (mediaSession, error) {
		return session.New(ice, s.sttEng, s.ttsEng, session.WithLogger(log))
	}
	return s
}

// Handler builds the full route table: static client, health, metrics, and
// the signalling socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	hc := health.New(health.Checker{
		Name: "model_host",
		Check: func(ctx context.Context) error {
			_, err := s.ollama.ListModels(ctx)
			return err
		},
	})
	hc.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	if s.cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.Server.StaticDir)))
	} else {
		mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			fmt.Fprintln(w, `{"service":"voicegate"}`)
		})
	}

	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully. TLS is used
// when configured; otherwise the listener is plain HTTP.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tlsCfg := s.cfg.Server.TLS
		s.log.Info("gateway listening",
			"addr", s.cfg.Server.ListenAddr,
			"tls", tlsCfg != nil)

		var err error
		if tlsCfg != nil {
			err = srv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: serve: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newProvider constructs the chat provider for a client-selected backend
// name. The Ollama client is shared; cloud providers are created per switch
// so a key rotation only needs a reconnect.
func (s *Server) newProvider(name string) (llm.ChatProvider, error) {
	switch name {
	case "ollama":
		return s.ollama, nil
	case "openai":
		if s.cfg.LLM.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("gateway: provider openai requires an API key")
		}
		return openai.New(s.cfg.LLM.OpenAIAPIKey)
	case "claude":
		if s.cfg.LLM.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("gateway: provider claude requires an API key")
		}
		return anyllm.NewClaude(anyllmlib.WithAPIKey(s.cfg.LLM.AnthropicAPIKey))
	default:
		return nil, fmt.Errorf("gateway: unknown provider %q", name)
	}
}

// defaultSelection picks the provider and model offered in hello_ack: a
// local model host with at least one installed model wins, otherwise the
// key-based resolution from config.
func (s *Server) defaultSelection(catalog ollama.Catalog) (provider, model string) {
	if catalog.Online && len(catalog.Installed) > 0 {
		model = s.cfg.LLM.OllamaModel
		if !catalogHas(catalog, model) {
			model = catalog.Installed[0].Name
		}
		return "ollama", model
	}

	provider = s.cfg.LLM.DefaultProviderName()
	switch provider {
	case "claude":
		model = anyllm.DefaultClaudeModel
	case "openai":
		model = openai.DefaultModel
	default:
		model = s.cfg.LLM.OllamaModel
	}
	return provider, model
}

func catalogHas(catalog ollama.Catalog, name string) bool {
	for _, m := range catalog.Installed {
		if m.Name == name || m.Name == name+":latest" {
			return true
		}
	}
	return false
}

// newOrchestrator builds the per-connection conversation state. Only the
// Ollama backend gets a model host for availability fallback.
func (s *Server) newOrchestrator(provider llm.ChatProvider, model string) *convo.Orchestrator {
	opts := []convo.Option{}
	if provider.Name() == "ollama" {
		opts = append(opts, convo.WithModelHost(s.ollama, s.cfg.LLM.OllamaModel, s.cfg.LLM.OllamaFallbackModel))
	}
	orch := convo.New(provider, s.registry, opts...)
	if model != "" {
		orch.SetModel(model)
	}
	return orch
}
