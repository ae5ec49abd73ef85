package scheduler

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/datingdna/datingdna_backend/services"
)

// DefaultSweepInterval is how often the lock sweep runs unless
// LOCK_SWEEP_INTERVAL overrides it.
const DefaultSweepInterval = time.Hour

// Manager owns the background jobs.
type Manager struct {
	scheduler gocron.Scheduler
	sweep     *services.SweepService
}

// NewManager creates the job scheduler.
func NewManager(sweep *services.SweepService) *Manager {
	s, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	return &Manager{scheduler: s, sweep: sweep}
}

// Start registers the jobs and starts the scheduler.
func (m *Manager) Start() {
	m.registerSweepJob()
	m.scheduler.Start()
	log.Println("Scheduler started")
}

func (m *Manager) registerSweepJob() {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(sweepInterval()),
		gocron.NewTask(m.runSweep),
		gocron.WithName("commission_lock_sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to register sweep job: %v", err)
	}
}

func (m *Manager) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := m.sweep.Sweep(ctx, time.Now())
	if err != nil {
		log.Printf("Scheduled sweep failed: %v", err)
		return
	}
	if result.Locked > 0 || result.Voided > 0 || result.Failed > 0 {
		log.Printf("Scheduled sweep: locked=%d voided=%d failed=%d",
			result.Locked, result.Voided, result.Failed)
	}
}

// Stop shuts the scheduler down.
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		log.Printf("Failed to shutdown scheduler: %v", err)
	}
	log.Println("Scheduler stopped")
}

func sweepInterval() time.Duration {
	if raw := os.Getenv("LOCK_SWEEP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
		log.Printf("Invalid LOCK_SWEEP_INTERVAL %q, using default", raw)
	}
	return DefaultSweepInterval
}
