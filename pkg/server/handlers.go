package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/bookdrop/pkg/config"
	"github.com/shishobooks/bookdrop/pkg/errcodes"
	"github.com/shishobooks/bookdrop/pkg/history"
	"github.com/shishobooks/bookdrop/pkg/identify"
	"github.com/shishobooks/bookdrop/pkg/processor"
	"github.com/shishobooks/bookdrop/pkg/tracker"
)

// ManualResolver re-drives a failed file with an operator-supplied
// identifier.
type ManualResolver interface {
	ResolveManually(ctx context.Context, path string, kind identify.Kind, value string) error
}

type handler struct {
	config   *config.Config
	store    *tracker.Store
	resolver ManualResolver
	history  *history.Service
}

func (h *handler) list(c echo.Context) error {
	files := h.store.List()
	return errors.WithStack(c.JSON(http.StatusOK, map[string]interface{}{
		"files": files,
	}))
}

// watch streams the tracked-file list as server-sent events: one snapshot on
// connect, then one per coalesced store change, until the client disconnects.
func (h *handler) watch(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	changes := h.store.Subscribe()
	defer h.store.Unsubscribe(changes)

	for {
		payload, err := json.Marshal(map[string]interface{}{"files": h.store.List()})
		if err != nil {
			return errors.WithStack(err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return errors.WithStack(err)
		}
		w.Flush()

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-changes:
		}
	}
}

func (h *handler) resolve(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ResolveFilePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	err := h.resolver.ResolveManually(ctx, params.Path, identify.Kind(params.Kind), params.Value)
	switch {
	case errors.Is(err, processor.ErrNotTracked):
		return errcodes.NotFound("File")
	case errors.Is(err, processor.ErrNotFailed):
		return errcodes.Conflict("File is not in the failed state.")
	case errors.Is(err, processor.ErrAlreadyRunning):
		return errcodes.Conflict("File is already being processed.")
	case errors.Is(err, processor.ErrInvalidISBN):
		return errcodes.ValidationError(`"value" is not a valid ISBN`)
	case errors.Is(err, processor.ErrEmptyIdentifier):
		return errcodes.ValidationError(`"value" is required`)
	case err != nil:
		return errors.WithStack(err)
	}

	file, ok := h.store.Get(params.Path)
	if !ok {
		return errcodes.NotFound("File")
	}
	return errors.WithStack(c.JSON(http.StatusAccepted, file))
}

func (h *handler) listHistory(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			return errcodes.ValidationError(`"limit" must be between 1 and 500`)
		}
		limit = parsed
	}

	records, err := h.history.ListRecords(ctx, history.ListRecordsOptions{
		Path:  c.QueryParam("path"),
		Limit: limit,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]interface{}{
		"records": records,
	}))
}

// retrieveConfig exposes the effective settings, minus credentials.
func (h *handler) retrieveConfig(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, map[string]interface{}{
		"watch_directory":       h.config.WatchDirectory,
		"destination_directory": h.config.DestinationDirName,
		"debounce_seconds":      int(h.config.DebounceInterval.Seconds()),
		"catalog_endpoint":      h.config.CatalogEndpoint,
	}))
}
