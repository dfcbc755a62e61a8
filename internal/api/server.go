package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"taskverify/internal/ports"
	"taskverify/internal/verify"
)

type Server struct {
	router *chi.Mux

	recorder  *verify.Recorder
	claimer   *verify.Claimer
	exec      *verify.Executor
	processor *verify.Processor
	store     ports.CompletionStore
	tasks     ports.TaskStore

	dwell           time.Duration
	schedulerSecret string
}

type Deps struct {
	Recorder  *verify.Recorder
	Claimer   *verify.Claimer
	Executor  *verify.Executor
	Processor *verify.Processor
	Store     ports.CompletionStore
	Tasks     ports.TaskStore

	DwellTime       time.Duration
	SchedulerSecret string
}

func NewServer(d Deps) *Server {
	s := &Server{
		recorder:        d.Recorder,
		claimer:         d.Claimer,
		exec:            d.Executor,
		processor:       d.Processor,
		store:           d.Store,
		tasks:           d.Tasks,
		dwell:           d.DwellTime,
		schedulerSecret: d.SchedulerSecret,
	}

	r := chi.NewRouter()
	r.Post("/tasks/{taskID}/click", s.handleClick)
	r.Post("/completions/{completionID}/claim", s.handleClaim)
	r.Post("/completions/{completionID}/verify", s.handleVerify)
	r.Post("/internal/process-due", s.handleProcessDue)
	r.Get("/internal/process-due", s.handleProcessDue)
	r.Get("/users/{userID}/tasks", s.handleUserTasks)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.router = r
	return s
}

// Run method of the Server struct runs the HTTP server on the specified port. It initializes
// a new HTTP server instance with the specified port and the server's router.
func (s *Server) Run(port int) {
	addr := fmt.Sprintf(":%d", port)

	h := chainMiddleware(
		s.router,
		recoverHandler,
		loggerHandler(func(w http.ResponseWriter, r *http.Request) bool { return r.URL.Path == "/healthz" }),
		realIPHandler,
		requestIDHandler,
		corsHandler,
	)

	httpServer := http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Failed to listen and serve")
	}

	<-done
	log.Info().Msg("Server stopped")
}
