// Package scheduler wires the periodic tasks (recurring grants, expiry
// sweeps, group sync, coalescer housekeeping) onto gocron: one scheduler,
// DurationJobs, logged ticks.
package scheduler

import (
	"context"
	"log"
	"time"

	"droptracker-ingest/coalescer"
	"droptracker-ingest/groupsync"
	"droptracker-ingest/points"

	"github.com/go-co-op/gocron/v2"
)

// Deps carries everything the periodic tasks touch.
type Deps struct {
	Ledger    *points.Ledger
	GroupSync *groupsync.Syncer
	Raids     *coalescer.Coalescer
}

// Start builds and starts the scheduler. The returned shutdown function
// stops all jobs; call it from main's graceful-shutdown path.
func Start(ctx context.Context, deps Deps) (func() error, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Every minute: recurring grants plus both expiry sweeps.
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			tickCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()

			if granted, err := deps.Ledger.RunRecurringGrants(tickCtx); err != nil {
				log.Printf("[Scheduler] recurring grants failed: %v", err)
			} else if granted > 0 {
				log.Printf("✅ [Scheduler] %d recurring grants awarded", granted)
			}

			if n, err := deps.Ledger.SweepExpired(tickCtx); err != nil {
				log.Printf("[Scheduler] credit expiry sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("✅ [Scheduler] %d credits expired", n)
			}

			if n, err := deps.Ledger.SweepExpiredActivations(tickCtx); err != nil {
				log.Printf("[Scheduler] activation expiry sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("✅ [Scheduler] %d activations expired", n)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	// Every 30 minutes: reconcile group membership against external rosters.
	_, err = sched.NewJob(
		gocron.DurationJob(30*time.Minute),
		gocron.NewTask(func() {
			tickCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			defer cancel()
			if err := deps.GroupSync.ReconcileAll(tickCtx); err != nil {
				log.Printf("[Scheduler] group sync failed: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	// Every minute: purge stale coalescer windows whose timers were lost
	// (belt-and-braces on top of the per-window timers).
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(deps.Raids.Sweep),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	log.Println("✅ Scheduler running (grants/sweeps every 1m, group sync every 30m)")
	return sched.Shutdown, nil
}
