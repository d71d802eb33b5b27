package api

import (
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/rohits-web03/esigned/docs"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/rohits-web03/esigned/internal/api/handlers"
	"github.com/rohits-web03/esigned/internal/api/middleware"
	"github.com/rohits-web03/esigned/internal/config"
	"github.com/rohits-web03/esigned/internal/metrics"
	"github.com/rohits-web03/esigned/internal/models"
	"github.com/rohits-web03/esigned/internal/utils"
	"github.com/rs/cors"
)

type Deps struct {
	Config     *config.Config
	Logger     *slog.Logger
	Handler    *handlers.Handler
	Auth       middleware.Authenticator
	Authorizer middleware.Authorizer
}

func SetupRouter(d Deps) http.Handler {
	mainMux := http.NewServeMux()
	c := cors.New(d.Config.CorsOptions())
	h := d.Handler

	authn := middleware.Auth(d.Auth)
	can := func(capability models.Capability, next http.HandlerFunc) http.Handler {
		return authn(middleware.RequireCapability(d.Authorizer, capability)(next))
	}

	// ---------- PUBLIC ROUTES ----------
	mainMux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mainMux.Handle("GET /metrics", metrics.Handler())
	mainMux.HandleFunc("GET /docs/", httpSwagger.WrapHandler)

	authMux := http.NewServeMux()
	authMux.HandleFunc("POST /register", h.Register)
	authMux.HandleFunc("POST /login", h.Login)
	authMux.HandleFunc("POST /activate", h.Activate)
	authMux.HandleFunc("POST /resend-activation", h.ResendActivation)
	authMux.Handle("POST /update-admin-password", can(models.CapManageAdminSecret, h.UpdateAdminPassword))
	authMux.HandleFunc("/", notFound)

	mainMux.Handle("/api/auth/", http.StripPrefix("/api/auth", authMux))

	// ---------- PROTECTED ROUTES ----------
	docMux := http.NewServeMux()
	docMux.HandleFunc("GET /{$}", h.ListDocuments)
	docMux.Handle("POST /upload", middleware.RequireCapability(d.Authorizer, models.CapUploadDocuments)(http.HandlerFunc(h.UploadDocument)))
	docMux.HandleFunc("POST /sign", h.SignDocument)
	docMux.HandleFunc("GET /download/{docId}", h.DownloadSigned)
	docMux.HandleFunc("GET /view/{docId}", h.ViewDocument)
	docMux.HandleFunc("/", notFound)

	mainMux.Handle("GET /api/documents", authn(http.HandlerFunc(h.ListDocuments)))
	mainMux.Handle("/api/documents/", http.StripPrefix("/api/documents", authn(docMux)))

	mainMux.HandleFunc("/", notFound)

	d.Logger.Info("router initialized")
	handler := c.Handler(mainMux)
	handler = middleware.LimitJSONBody(d.Config.MaxJSONBytes)(handler)
	handler = middleware.Recover(d.Logger)(handler)
	handler = middleware.Logger(d.Logger)(handler)
	return handler
}

func notFound(w http.ResponseWriter, r *http.Request) {
	utils.JSONResponse(w, http.StatusNotFound, utils.Payload{Message: "Route not found"})
}
