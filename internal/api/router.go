package api

import (
	"net/http"

	_ "go-cog-pipeline/docs"
	"go-cog-pipeline/internal/api/handler"
	"go-cog-pipeline/pkg/router"

	httpSwagger "github.com/swaggo/http-swagger"
)

func RegisterRoutes(r *router.Router, h *handler.RunHandler) {
	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/series", h.GetRunSeries)
	r.GET("/api/v1/runs/*/failures", h.GetRunFailures)
	r.GET("/api/v1/runs/*/progress", h.GetRunProgress)
	r.GET("/api/v1/runs/*/files/*", h.DownloadFile)
	r.POST("/api/v1/runs/*/cancel", h.CancelRun)
	// Generic run routes last
	r.GET("/api/v1/runs/*", h.GetRun)
	r.DELETE("/api/v1/runs/*", h.DeleteRun)

	r.GET("/api/v1/metadata", h.GetMetadata)
	r.GET("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.WrapHandler))
}
