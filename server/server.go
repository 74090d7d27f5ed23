// Package server assembles and runs the assistant HTTP server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lessonloop/assistant/internal/profile"
	"github.com/lessonloop/assistant/plugin/llm"
	"github.com/lessonloop/assistant/plugin/persona"
	"github.com/lessonloop/assistant/plugin/platform"
	"github.com/lessonloop/assistant/plugin/ratelimit"
	"github.com/lessonloop/assistant/plugin/respcache"
	"github.com/lessonloop/assistant/plugin/tools"
	apiv1 "github.com/lessonloop/assistant/server/api/v1"
	"github.com/lessonloop/assistant/server/middleware"
	"github.com/lessonloop/assistant/server/service/chat"
	"github.com/lessonloop/assistant/store"
)

// Server is the assembled assistant process.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	chat       *chat.Service
}

// NewServer wires the conversation pipeline onto an echo instance. The
// platform service is the stub backend until the live platform gateway
// lands.
func NewServer(ctx context.Context, profile *profile.Profile, st *store.Store) (*Server, error) {
	platformSvc := platform.NewStubService()

	registry, err := tools.NewBuiltinRegistry(platformSvc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tool registry")
	}

	chain, err := llm.NewChain(llm.FactoryConfig{
		Preferred:       profile.LLMProvider,
		OpenAIAPIKey:    profile.OpenAIAPIKey,
		OpenAIBaseURL:   profile.OpenAIBaseURL,
		OpenAIModel:     profile.OpenAIModel,
		DeepSeekAPIKey:  profile.DeepSeekAPIKey,
		DeepSeekBaseURL: profile.DeepSeekBaseURL,
		DeepSeekModel:   profile.DeepSeekModel,
		OllamaServerURL: profile.OllamaBaseURL,
		OllamaModel:     profile.OllamaModel,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build completion chain")
	}
	for _, p := range chain.Providers() {
		slog.Info("completion backend registered", "provider", p.Name())
	}

	budgets := ratelimit.DefaultBudgets()
	if !profile.RateLimitEnabled {
		// Unknown actions pass; an empty table disables every budget.
		budgets = map[ratelimit.Action]ratelimit.Budget{}
		slog.Warn("domain rate limiting disabled by profile")
	}

	chatService := chat.NewService(
		persona.NewRegistry(platformSvc),
		chain,
		registry,
		tools.NewExecutor(registry),
		ratelimit.New(ratelimit.NewMemoryCounterStore(), budgets),
		respcache.New(profile.ResponseCacheSize),
		st,
		profile.ProviderMaxTokens,
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(middleware.NewRateLimiter(time.Second/10, 20).Middleware())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": profile.Version,
			"mode":    profile.Mode,
		})
	})

	apiv1.NewAPIV1Service(profile, st, chatService).Register(e)

	return &Server{
		Profile:    profile,
		Store:      st,
		echoServer: e,
		chat:       chatService,
	}, nil
}

// Start runs the HTTP listener until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server listening", "addr", addr, "mode", s.Profile.Mode)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.echoServer.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echoServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown archives live sessions and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	s.chat.Shutdown(ctx)
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server shutdown complete")
}
