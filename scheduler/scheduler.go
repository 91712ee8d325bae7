// Package scheduler wakes actors that are asleep (evicted from every
// node's live set) but are carrying a due durable alarm in their Persisted
// Record. A live actor.Instance rearms its own OS timer on every boot and
// every schedule mutation (actor/alarm.go), so this package exists only
// for the gap a single in-process timer cannot cover: an actor nobody has
// touched since the timer's owning process last ran.
//
// Wraps gocron the same way the teacher's internal/scheduler/scheduler.go
// wraps it for policy ticks: one gocron.Scheduler, one named job, started
// and stopped alongside the rest of the process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/driver"
	"github.com/statedge/actorhost/serde"
)

// Sweeper periodically scans every known actor's Persisted Record for a
// due alarm and loads it (via the ActorDriver) if one is found, which in
// turn triggers the instance's own onAlarmFire sweep on boot.
type Sweeper struct {
	cron     gocron.Scheduler
	managerD driver.ManagerDriver
	actorD   driver.ActorDriver
	store    driver.PersistenceDriver
	codec    serde.Codec
	log      *zap.Logger
}

// New builds a Sweeper. codec must match the encoding the Persisted
// Record was written with (bare, per spec §4.1's recommendation).
func New(managerD driver.ManagerDriver, actorD driver.ActorDriver, store driver.PersistenceDriver, codec serde.Codec, log *zap.Logger) (*Sweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to create gocron scheduler: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		cron:     s,
		managerD: managerD,
		actorD:   actorD,
		store:    store,
		codec:    codec,
		log:      log.Named("scheduler"),
	}, nil
}

// Start schedules the sweep to run every interval and starts the
// underlying gocron scheduler. An initial sweep also runs immediately, so
// alarms that came due while the process was down are not delayed by a
// full interval.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: failed to register sweep job: %w", err)
	}
	s.sweep(ctx) // catch up on alarms that came due while the process was down
	s.cron.Start()
	s.log.Info("alarm sweep started", zap.Duration("interval", interval))
	return nil
}

// Stop gracefully shuts down the sweep, waiting for an in-flight sweep to
// finish before returning.
func (s *Sweeper) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown error: %w", err)
	}
	s.log.Info("alarm sweep stopped")
	return nil
}

// sweep lists every known actor id and wakes any whose Persisted Record
// carries a schedule entry already due. Already-live actors are skipped:
// their own in-memory timer owns the fire.
func (s *Sweeper) sweep(ctx context.Context) {
	metas, err := s.managerD.ListAll(ctx)
	if err != nil {
		s.log.Warn("sweep: failed to list actors", zap.Error(err))
		return
	}
	now := time.Now().UnixMilli()
	for _, meta := range metas {
		if _, live := s.actorD.Lookup(meta.ActorID); live {
			continue
		}
		due, err := s.hasDueAlarm(ctx, meta.ActorID, now)
		if err != nil {
			s.log.Warn("sweep: failed to inspect record", zap.String("actor_id", meta.ActorID), zap.Error(err))
			continue
		}
		if !due {
			continue
		}
		s.log.Info("waking actor for due alarm", zap.String("actor_id", meta.ActorID), zap.String("name", meta.Name))
		if _, err := s.actorD.LoadOrCreate(ctx, *meta, meta.Input); err != nil {
			s.log.Warn("sweep: failed to wake actor", zap.String("actor_id", meta.ActorID), zap.Error(err))
		}
	}
}

func (s *Sweeper) hasDueAlarm(ctx context.Context, actorID string, nowUnixMilli int64) (bool, error) {
	data, err := s.store.Load(ctx, actorID)
	if err != nil {
		if err == driver.ErrNoRecord {
			return false, nil
		}
		return false, err
	}
	var record actor.PersistedRecord
	if err := s.codec.Unmarshal(data, &record); err != nil {
		return false, err
	}
	for _, entry := range record.Schedule {
		if entry.DueAtUnix <= nowUnixMilli {
			return true, nil
		}
	}
	return false, nil
}
