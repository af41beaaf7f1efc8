package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"session-scheduler-backend/internal/engine"
	"session-scheduler-backend/internal/store"
)

// Scheduler is the set of scheduling operations the API exposes.
type Scheduler interface {
	RunPass(ctx context.Context) (*engine.Result, error)
	Clear(ctx context.Context) (engine.Outcome, error)
	Inspect(ctx context.Context) (*engine.Inspection, error)
	CheckManual(ctx context.Context, req engine.ManualRequest) (*engine.ManualResult, error)
	ManualAssign(ctx context.Context, req engine.ManualRequest) (*engine.ManualResult, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	scheduler Scheduler
	webpush   *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, sched Scheduler, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:     s,
		scheduler: sched,
		webpush:   webpushOptions,
	}
}
