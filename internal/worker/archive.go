// Package worker runs the engine's scheduled jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

type LedgerWriter interface {
	PutLedger(ctx context.Context, day time.Time, entries []models.LedgerEntry) (string, error)
}

// Archiver exports one calendar day of ledger entries.
type Archiver struct {
	store  service.Store
	writer LedgerWriter
	clock  clockwork.Clock
	loc    *time.Location
	log    *slog.Logger
}

func NewArchiver(store service.Store, writer LedgerWriter, clock clockwork.Clock, loc *time.Location, log *slog.Logger) *Archiver {
	if loc == nil {
		loc = time.UTC
	}
	return &Archiver{store: store, writer: writer, clock: clock, loc: loc, log: log}
}

// ArchiveDay exports entries created during the civil date of day in the
// archiver's location.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, a.loc)
	to := from.AddDate(0, 0, 1)
	entries, err := a.store.Ledger().EntriesBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("load ledger for %s: %w", from.Format(time.DateOnly), err)
	}
	key, err := a.writer.PutLedger(ctx, from, entries)
	if err != nil {
		return 0, err
	}
	a.log.Info("ledger archived", "day", from.Format(time.DateOnly), "entries", len(entries), "key", key)
	return len(entries), nil
}

// ArchiveYesterday is the scheduled task body.
func (a *Archiver) ArchiveYesterday(ctx context.Context) (int, error) {
	yesterday := a.clock.Now().In(a.loc).AddDate(0, 0, -1)
	return a.ArchiveDay(ctx, yesterday)
}

type Scheduler struct {
	sched gocron.Scheduler
	log   *slog.Logger
}

// NewScheduler registers the daily archive at hh:mm in loc.
func NewScheduler(archiver *Archiver, at string, clock clockwork.Clock, loc *time.Location, log *slog.Logger) (*Scheduler, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("parse archive time %q: %w", at, err)
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc), gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(t.Hour()), uint(t.Minute()), 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := archiver.ArchiveYesterday(ctx); err != nil {
				log.Error("ledger archive failed", "err", err)
			}
		}),
		gocron.WithName("ledger-archive"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("register archive job: %w", err)
	}
	return &Scheduler{sched: sched, log: log}, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.log.Info("scheduler started")
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
