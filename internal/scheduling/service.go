// Package scheduling runs engine operations against persisted state: it
// takes the pass lock, loads a snapshot, persists the outcome and tells
// subscribers which machine timetables changed.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"session-scheduler-backend/config"
	"session-scheduler-backend/internal/engine"
	"session-scheduler-backend/internal/lock"
	"session-scheduler-backend/internal/metrics"
	"session-scheduler-backend/internal/store"
)

const saveTimeout = 30 * time.Second

// Dispatcher queues a machine whose timetable changed.
type Dispatcher interface {
	Dispatch(machineID string) bool
}

// Service orchestrates scheduling operations. It uses a Store for persistence.
type Service struct {
	cfg      config.SchedulingConfig
	store    store.Store
	engine   *engine.Engine
	locker   lock.Locker
	notifier Dispatcher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewService wires a service. notifier and m may be nil.
func NewService(cfg config.SchedulingConfig, st store.Store, eng *engine.Engine, locker lock.Locker, notifier Dispatcher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		cfg:      cfg,
		store:    st,
		engine:   eng,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With().Str("component", "scheduling").Logger(),
	}
}

// Run executes a pass every AutoRunInterval until ctx ends. A zero
// interval disables the loop.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.AutoRunInterval <= 0 {
		s.logger.Info().Msg("periodic scheduling is disabled")
		return
	}
	s.logger.Info().Dur("interval", s.cfg.AutoRunInterval).Msg("starting periodic scheduling")

	timer := time.NewTimer(s.cfg.AutoRunInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("periodic scheduling shutting down")
			return
		case <-timer.C:
			if _, err := s.RunPass(ctx); err != nil && !errors.Is(err, engine.ErrPassInProgress) {
				s.logger.Error().Err(err).Msg("scheduled pass failed")
			}
			timer.Reset(s.cfg.AutoRunInterval)
		}
	}
}

// RunPass runs one pass over the persisted state and saves the result.
func (s *Service) RunPass(ctx context.Context) (*engine.Result, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		s.metrics.ObservePass(metrics.OutcomeSkipped, 0, nil)
		return nil, err
	}
	defer s.release(release)

	started := time.Now()
	passCtx := ctx
	if s.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, s.cfg.PassTimeout)
		defer cancel()
	}

	in, err := s.store.LoadSnapshot(passCtx)
	if err != nil {
		s.metrics.ObservePass(metrics.OutcomeError, time.Since(started), nil)
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	res, err := s.engine.Run(passCtx, in)
	if err != nil {
		s.metrics.ObservePass(metrics.OutcomeError, time.Since(started), nil)
		return nil, fmt.Errorf("run pass: %w", err)
	}

	if err := s.save(ctx, res.Outcome); err != nil {
		s.metrics.ObservePass(metrics.OutcomeError, time.Since(started), nil)
		return nil, err
	}

	outcome := metrics.OutcomeSuccess
	if res.Cancelled {
		outcome = metrics.OutcomeCancelled
	}
	s.metrics.ObservePass(outcome, time.Since(started), res)
	s.notify(changedMachines(in.Existing, res.Assignments))

	s.logger.Info().
		Int("total", res.Summary.TotalSessions).
		Int("scheduled", res.Summary.Scheduled).
		Int("queued", res.Summary.Queued).
		Int("conflicts", res.Summary.Conflicts).
		Int("overallocations", len(res.Overallocations)).
		Int("moves", res.Moves).
		Bool("cancelled", res.Cancelled).
		Dur("took", time.Since(started)).
		Msg("scheduling pass finished")
	return res, nil
}

// Clear drops every assignment and resets session and machine states.
func (s *Service) Clear(ctx context.Context) (engine.Outcome, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return engine.Outcome{}, err
	}
	defer s.release(release)

	in, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("load snapshot: %w", err)
	}
	out, err := s.engine.Clear(in)
	if err != nil {
		return engine.Outcome{}, err
	}
	if err := s.save(ctx, out); err != nil {
		return engine.Outcome{}, err
	}
	s.notify(changedMachines(in.Existing, nil))
	return out, nil
}

// Inspect reports the timeline, usage and overallocations of the
// persisted schedule.
func (s *Service) Inspect(ctx context.Context) (*engine.Inspection, error) {
	in, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return s.engine.Inspect(in)
}

// CheckManual reports the conflicts a manual assignment would create.
func (s *Service) CheckManual(ctx context.Context, req engine.ManualRequest) (*engine.ManualResult, error) {
	in, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return s.engine.CheckManual(in, req)
}

// ManualAssign commits a manual assignment and persists the new state.
func (s *Service) ManualAssign(ctx context.Context, req engine.ManualRequest) (*engine.ManualResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release(release)

	in, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	res, err := s.engine.Manual(in, req)
	if err != nil {
		if errors.Is(err, engine.ErrSlotOccupied) {
			s.metrics.ObserveManual("occupied")
		} else {
			s.metrics.ObserveManual("rejected")
		}
		return nil, err
	}
	if err := s.save(ctx, res.Outcome); err != nil {
		return nil, err
	}
	s.metrics.ObserveManual("committed")
	s.notify(changedMachines(in.Existing, res.Assignments))
	return res, nil
}

// acquire maps a held lock onto engine.ErrPassInProgress.
func (s *Service) acquire(ctx context.Context) (lock.Release, error) {
	release, err := s.locker.TryAcquire(ctx)
	if errors.Is(err, lock.ErrHeld) {
		return nil, fmt.Errorf("%w: %v", engine.ErrPassInProgress, err)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire pass lock: %w", err)
	}
	return release, nil
}

func (s *Service) release(release lock.Release) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := release(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to release pass lock")
	}
}

// save persists even when the caller's context already ended, so a
// cancelled pass still records its partial result.
func (s *Service) save(ctx context.Context, out engine.Outcome) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.store.SaveOutcome(saveCtx, out); err != nil {
		return fmt.Errorf("save outcome: %w", err)
	}
	return nil
}

func (s *Service) notify(machineIDs []string) {
	if s.notifier == nil || len(machineIDs) == 0 {
		return
	}
	s.logger.Debug().Strs("machines", machineIDs).Msg("dispatching notifications")
	for _, id := range machineIDs {
		s.notifier.Dispatch(id)
	}
}

// changedMachines lists, sorted, the machines whose set of assignments
// differs between before and after.
func changedMachines(before, after []engine.Assignment) []string {
	key := func(a engine.Assignment) string {
		return fmt.Sprintf("%s|%s|%s|%d|%d", a.SessionID, a.MachineID, a.CombinationID, a.StartsAt.Unix(), a.EndsAt.Unix())
	}
	count := func(list []engine.Assignment, sign int, acc map[string]map[string]int) {
		for _, a := range list {
			if acc[a.MachineID] == nil {
				acc[a.MachineID] = map[string]int{}
			}
			acc[a.MachineID][key(a)] += sign
		}
	}
	diff := map[string]map[string]int{}
	count(before, 1, diff)
	count(after, -1, diff)

	var out []string
	for machine, keys := range diff {
		for _, n := range keys {
			if n != 0 {
				out = append(out, machine)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
