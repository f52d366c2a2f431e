package http

import (
	"context"
	"net/http"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/config"
	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/usecase"

	"github.com/gin-gonic/gin"
)

// PackageStore reads back assembled packages.
type PackageStore interface {
	Get(ctx context.Context, id string) (domain.AuditPackage, error)
}

type ServerDeps struct {
	Evidence  *usecase.EvidenceStore
	Scheduler *usecase.Scheduler
	Assembler *usecase.Assembler
	Packages  PackageStore
	// Mode is reported by /healthz ("db" or "memory").
	Mode string
}

type Server struct {
	cfg config.Config
	r   *gin.Engine

	evidence  *usecase.EvidenceStore
	scheduler *usecase.Scheduler
	assembler *usecase.Assembler
	packages  PackageStore
	mode      string

	apiKey         string
	maxUploadBytes int64
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:            cfg,
		r:              r,
		evidence:       deps.Evidence,
		scheduler:      deps.Scheduler,
		assembler:      deps.Assembler,
		packages:       deps.Packages,
		mode:           deps.Mode,
		apiKey:         cfg.APIKey,
		maxUploadBytes: int64(cfg.MaxUploadBytes),
	}
	if s.mode == "" {
		s.mode = "memory"
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 64 << 20
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves on cfg.HTTPAddr until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.r}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.mode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/evidence", s.handleUploadEvidence)
		v1.GET("/evidence/:id", s.handleGetEvidence)
		v1.GET("/evidence/:id/verify", s.handleVerifyEvidence)
		v1.POST("/evidence/:id/review", s.handleReviewEvidence)

		v1.GET("/controls/due", s.handleDueControls)

		v1.POST("/packages", s.handleAssemblePackage)
		v1.GET("/packages/:id", s.handleGetPackage)
	}

	s.r.NoRoute(s.handleNoRoute)
}
