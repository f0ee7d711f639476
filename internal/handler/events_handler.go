package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/service"

	"go.uber.org/zap"
)

const (
	eventBuffer       = 16
	keepAliveInterval = 15 * time.Second
)

// eventsHandler streams the session's snapshot lifecycle as server-sent
// events. The first frame is the current status. A client too slow to drain
// its buffer loses events, never blocks the coordinator.
func eventsHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID := SessionIDFromContext(ctx)

		engine, err := ledgerSvc.Engine(sessionID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		events := make(chan domain.SnapshotEvent, eventBuffer)
		unsubscribe := engine.Subscribe(func(ev domain.SnapshotEvent) {
			select {
			case events <- ev:
			default:
				logger.Warn("sse: dropping event for slow client",
					zap.String("session_id", sessionID),
					zap.String("type", string(ev.Type)),
					zap.Uint64("seq", ev.Seq),
				)
			}
		})
		defer unsubscribe()

		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if err := writeEvent(w, "status", engine.Status()); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			logger.Error("sse: streaming unsupported", zap.Error(err))
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if err := writeEvent(w, string(ev.Type), ev); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
