package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crm-backup-service/internal/logging"
	"crm-backup-service/internal/models"
)

// Cron expressions driving the pipeline. Backup triggers fire at 02:00 server
// time and each owner's configured hour is matched against the trigger time
// with a tolerance window, so owners whose hour is minutes off the trigger
// still run.
const (
	weeklyCronSpec  = "0 2 * * 1" // Mondays 02:00
	monthlyCronSpec = "0 2 1 * *" // 1st of the month 02:00
	sweepCronSpec   = "0 3 * * *" // daily 03:00
)

// Scheduler drives the periodic backup and retention runs. One process owns
// the schedule; owners are iterated within a trigger, never given individual
// cron entries.
type Scheduler struct {
	records   RecordStore
	generator *Generator
	retention *RetentionManager
	config    *Config
	logger    *logging.Logger
	cron      *cron.Cron
	now       func() time.Time

	mu    sync.Mutex
	fired map[string]time.Time
}

// NewScheduler creates a scheduler. Start registers the cron entries and runs
// catch-up for triggers missed while the process was down.
func NewScheduler(records RecordStore, generator *Generator, retention *RetentionManager, config *Config, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Scheduler{
		records:   records,
		generator: generator,
		retention: retention,
		config:    config,
		logger:    logger,
		cron:      cron.New(),
		now:       time.Now,
		fired:     make(map[string]time.Time),
	}
}

// Start runs catch-up for missed triggers, registers the cron entries and
// starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.catchUp(ctx)

	if _, err := s.cron.AddFunc(weeklyCronSpec, func() {
		s.runScheduled(context.Background(), models.FrequencyWeekly)
	}); err != nil {
		return NewConfigurationError("failed to register weekly backup schedule", err)
	}
	if _, err := s.cron.AddFunc(monthlyCronSpec, func() {
		s.runScheduled(context.Background(), models.FrequencyMonthly)
	}); err != nil {
		return NewConfigurationError("failed to register monthly backup schedule", err)
	}
	if _, err := s.cron.AddFunc(sweepCronSpec, func() {
		s.runSweep(context.Background())
	}); err != nil {
		return NewConfigurationError("failed to register retention sweep schedule", err)
	}

	s.cron.Start()
	s.logger.Info("Backup scheduler started")
	return nil
}

// Stop halts the cron loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Backup scheduler stopped")
}

// runScheduled executes one backup trigger: every owner whose frequency
// matches and whose configured hour falls within the tolerance window around
// the trigger time gets a backup of each selected entity type. Owner failures
// are isolated; one owner's error never stops the others.
func (s *Scheduler) runScheduled(ctx context.Context, frequency models.Frequency) {
	triggered := s.now()
	s.logger.Infof("Scheduled %s run triggered at %s", frequency, triggered.Format(time.RFC3339))

	owners, err := s.records.ListSettings(ctx)
	if err != nil {
		s.logger.Errorf("Scheduled %s run could not list owners: %v", frequency, err)
		return
	}

	ran := 0
	for _, settings := range owners {
		if settings.Frequency != frequency {
			continue
		}
		if !withinTolerance(settings.BackupHour, triggered, s.config.HourTolerance) {
			continue
		}
		if !s.markFired(settings.OwnerID, frequency, triggered) {
			continue
		}
		s.runOwner(ctx, settings, frequency)
		ran++
	}

	if err := s.records.RecordRun(ctx, runKindFor(frequency), triggered); err != nil {
		s.logger.Warnf("Could not record %s run: %v", frequency, err)
	}
	s.logger.Infof("Scheduled %s run finished: %d of %d owners processed", frequency, ran, len(owners))
}

// runOwner backs up every selected entity type for one owner. Entity-type
// failures are isolated as well.
func (s *Scheduler) runOwner(ctx context.Context, settings *models.OwnerSettings, frequency models.Frequency) {
	failures := 0
	for _, et := range settings.DataTypes {
		if _, err := s.generator.Generate(ctx, settings.OwnerID, et, frequency); err != nil {
			s.logger.Errorf("Scheduled backup of %s for owner %d failed: %v",
				et, settings.OwnerID, err)
			failures++
		}
	}
	s.logger.LogScheduledRun(settings.OwnerID, string(frequency), len(settings.DataTypes), failures)
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if _, err := s.retention.PurgeExpired(ctx); err != nil {
		s.logger.Errorf("Retention sweep failed: %v", err)
		return
	}
	if err := s.records.RecordRun(ctx, models.RunRetentionSweep, s.now()); err != nil {
		s.logger.Warnf("Could not record retention sweep run: %v", err)
	}
}

// markFired records that the owner's trigger fired, suppressing a duplicate
// fire within twice the tolerance window. Guards against an owner whose hour
// sits near the window edge matching two adjacent triggers.
func (s *Scheduler) markFired(ownerID int64, frequency models.Frequency, at time.Time) bool {
	key := fmt.Sprintf("%d/%s", ownerID, frequency)

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.fired[key]; ok && at.Sub(last) < 2*s.config.HourTolerance {
		return false
	}
	s.fired[key] = at
	return true
}

// catchUp runs the triggers that were missed while the process was down. A
// retention sweep is due when none ran in the past day; a weekly backup run
// is due when none ran since the start of the current week.
func (s *Scheduler) catchUp(ctx context.Context) {
	now := s.now()

	lastSweep, err := s.records.LastRun(ctx, models.RunRetentionSweep)
	if err != nil {
		s.logger.Warnf("Could not read last retention sweep time: %v", err)
	} else if lastSweep == nil || now.Sub(*lastSweep) > 24*time.Hour {
		s.logger.Info("Running catch-up retention sweep")
		s.runSweep(ctx)
	}

	lastWeekly, err := s.records.LastRun(ctx, models.RunWeeklyBackup)
	if err != nil {
		s.logger.Warnf("Could not read last weekly backup time: %v", err)
	} else if lastWeekly == nil || lastWeekly.Before(startOfWeek(now)) {
		s.logger.Info("Running catch-up weekly backup")
		s.runCatchUpBackups(ctx, models.FrequencyWeekly)
	}
}

// runCatchUpBackups backs up every matching owner regardless of their
// configured hour: the window already passed, so the hour filter would skip
// everyone.
func (s *Scheduler) runCatchUpBackups(ctx context.Context, frequency models.Frequency) {
	triggered := s.now()

	owners, err := s.records.ListSettings(ctx)
	if err != nil {
		s.logger.Errorf("Catch-up %s run could not list owners: %v", frequency, err)
		return
	}

	for _, settings := range owners {
		if settings.Frequency != frequency {
			continue
		}
		if !s.markFired(settings.OwnerID, frequency, triggered) {
			continue
		}
		s.runOwner(ctx, settings, frequency)
	}

	if err := s.records.RecordRun(ctx, runKindFor(frequency), triggered); err != nil {
		s.logger.Warnf("Could not record catch-up %s run: %v", frequency, err)
	}
}

// NextRun computes the next time the owner's backup is due. With an empty run
// history this is the first trigger slot matching the owner's frequency and
// hour strictly after now.
func NextRun(settings *models.OwnerSettings, now time.Time) time.Time {
	due := time.Date(now.Year(), now.Month(), now.Day(),
		settings.BackupHour/60, settings.BackupHour%60, 0, 0, now.Location())

	switch settings.Frequency {
	case models.FrequencyMonthly:
		due = time.Date(now.Year(), now.Month(), 1,
			settings.BackupHour/60, settings.BackupHour%60, 0, 0, now.Location())
		for !due.After(now) {
			due = due.AddDate(0, 1, 0)
		}
	default:
		// Weekly runs on Mondays.
		for due.Weekday() != time.Monday || !due.After(now) {
			due = due.AddDate(0, 0, 1)
		}
	}
	return due
}

// withinTolerance reports whether the owner's configured hour falls inside
// the tolerance window around the trigger time. Distances are computed on the
// minutes-since-midnight circle so a window straddling midnight still
// matches.
func withinTolerance(backupHour int, triggered time.Time, tolerance time.Duration) bool {
	triggerMinutes := triggered.Hour()*60 + triggered.Minute()

	diff := backupHour - triggerMinutes
	if diff < 0 {
		diff = -diff
	}
	if wrapped := 24*60 - diff; wrapped < diff {
		diff = wrapped
	}
	return time.Duration(diff)*time.Minute <= tolerance
}

func runKindFor(frequency models.Frequency) models.RunKind {
	if frequency == models.FrequencyMonthly {
		return models.RunMonthlyBackup
	}
	return models.RunWeeklyBackup
}

func startOfWeek(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}
