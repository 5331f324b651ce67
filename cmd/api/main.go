package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"askerp/internal/agent"
	"askerp/internal/catalog"
	"askerp/internal/company"
	"askerp/internal/config"
	"askerp/internal/convo"
	"askerp/internal/erpcall"
	"askerp/internal/logging"
	"askerp/internal/oracle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(nil, "info").Fatal().Err(err).Msg("config load failed")
	}
	log := logging.New(nil, cfg.LogLevel)

	ctx := context.Background()

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("catalog load failed")
	}
	log.Info().Int("capabilities", cat.Len()).Msg("capability catalog loaded")

	var companies *company.Store
	var sessions convo.SessionStore
	if cfg.PostgresDSN != "" {
		companies, err = company.NewPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("company store connect failed")
		}
		pg, err := convo.NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("session store connect failed")
		}
		defer pg.Close()
		sessions = pg
	} else {
		log.Warn().Msg("no POSTGRES_DSN, using in-memory stores")
		companies = company.New()
		sessions = convo.NewMemoryStore()
	}
	defer companies.Close()

	llm, err := oracle.NewGeminiClient(ctx, cfg.Oracle.APIKey, cfg.Oracle.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("oracle client init failed")
	}
	orc := oracle.New(llm, cfg.Oracle, log)
	defer orc.Close()

	caller := erpcall.New(cfg.ERP.BaseURL, cfg.ERP.Timeout, log)
	defer caller.Close()

	history := convo.NewHistory(sessions, cfg.Convo, log)
	memory := convo.NewSessionMemory(cfg.Convo.SessionMemoryTTL)

	orch := agent.New(cat, orc, caller, companies, history, memory, cfg.Oracle, log)

	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: withCORS(buildMux(newAPIServer(orch, history, caller, cat, companies, log))),
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("askerp API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	// Drain buffered conversation turns before exit.
	history.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
