package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-profiler/internal/metrics"
	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/pipeline"
)

// profiler is the part of the coordinator the HTTP handlers call.
type profiler interface {
	Run(ctx context.Context, identity model.CompanyIdentity) (*pipeline.Outcome, error)
	RunPhase(ctx context.Context, identity model.CompanyIdentity, phase model.Phase) (*model.PhaseResult, error)
}

// recordReader serves point queries.
type recordReader interface {
	Latest(ctx context.Context, companyID string) (*model.MergedRecord, error)
}

type profileRequest struct {
	CompanyName string `json:"company_name"`
	WebsiteURL  string `json:"website_url"`
	StockSymbol string `json:"stock_symbol"`
	Location    string `json:"location"`
}

type phaseResponse struct {
	Result         *model.PhaseResult `json:"result"`
	BelowThreshold bool               `json:"below_threshold"`
	Error          string             `json:"error,omitempty"`
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for profile requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve", false)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildMux(env.Coordinator, env.Store, env.Metrics, cfg.Server.CORSOrigins, cfg.Server.RequestTimeout()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildMux wires the routes. Profile requests run synchronously under the
// request context, so a client disconnect cancels the run.
func buildMux(svc profiler, records recordReader, rec *metrics.Recorder, origins []string, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", rec.Handler())

	r.Route("/v1/profiles", func(r chi.Router) {
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			identity, ok := decodeIdentity(w, r)
			if !ok {
				return
			}
			ctx := pipeline.WithRunID(r.Context(), middleware.GetReqID(r.Context()))
			out, err := svc.Run(ctx, identity)
			if err != nil {
				respondError(w, err)
				return
			}
			respond(w, http.StatusOK, out)
		})

		r.Post("/{phase}", func(w http.ResponseWriter, r *http.Request) {
			phase, err := model.ParsePhase(chi.URLParam(r, "phase"))
			if err != nil {
				respondError(w, err)
				return
			}
			identity, ok := decodeIdentity(w, r)
			if !ok {
				return
			}
			ctx := pipeline.WithRunID(r.Context(), middleware.GetReqID(r.Context()))
			res, err := svc.RunPhase(ctx, identity, phase)
			if err != nil && !res.HasProfile() {
				respondError(w, err)
				return
			}
			resp := phaseResponse{Result: res, BelowThreshold: res.BelowThreshold()}
			if err != nil {
				resp.Error = err.Error()
			}
			respond(w, http.StatusOK, resp)
		})

		r.Get("/{company_id}/latest", func(w http.ResponseWriter, r *http.Request) {
			companyID := chi.URLParam(r, "company_id")
			got, err := records.Latest(r.Context(), companyID)
			if err != nil {
				respondError(w, err)
				return
			}
			if got == nil {
				respond(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no record for company %q", companyID)})
				return
			}
			respond(w, http.StatusOK, got)
		})
	})

	return r
}

func decodeIdentity(w http.ResponseWriter, r *http.Request) (model.CompanyIdentity, bool) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return model.CompanyIdentity{}, false
	}
	identity, err := model.NewCompanyIdentity(req.CompanyName, req.StockSymbol, req.WebsiteURL, req.Location)
	if err != nil {
		respondError(w, err)
		return model.CompanyIdentity{}, false
	}
	return identity, true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case model.IsInputValidation(err):
		return http.StatusBadRequest
	case model.IsPersistence(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case model.IsSearchExhausted(err), model.IsExtraction(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Int("status", code), zap.Error(err))
	}
	respond(w, code, map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
