package server

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/bookdrop/pkg/config"
	"github.com/shishobooks/bookdrop/pkg/history"
	"github.com/shishobooks/bookdrop/pkg/tracker"
)

// RegisterRoutes registers the tracked-files API.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, store *tracker.Store, resolver ManualResolver, historySvc *history.Service) {
	h := &handler{
		config:   cfg,
		store:    store,
		resolver: resolver,
		history:  historySvc,
	}

	e.GET("/files", h.list)
	e.GET("/files/watch", h.watch)
	e.POST("/files/resolve", h.resolve)
	e.GET("/config", h.retrieveConfig)
	if historySvc != nil {
		e.GET("/files/history", h.listHistory)
	}
}
