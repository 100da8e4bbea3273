package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backup-service/internal/models"
)

func schedulerFixture(t *testing.T) (*Scheduler, *fakeRecordStore, *fakeDomainStore) {
	t.Helper()
	records := newFakeRecordStore()
	domain := newFakeDomainStore()
	config := testConfig(t.TempDir())

	generator := NewGenerator(records, domain, NewTableRenderer(), nil, config, nil)
	retention := NewRetentionManager(records, nil)
	s := NewScheduler(records, generator, retention, config, nil)
	return s, records, domain
}

func addOwner(records *fakeRecordStore, ownerID int64, frequency models.Frequency, backupHour int) {
	records.settings[ownerID] = &models.OwnerSettings{
		OwnerID:    ownerID,
		DataTypes:  []models.EntityType{models.EntityDeals},
		Frequency:  frequency,
		BackupHour: backupHour,
	}
}

func TestWithinTolerance(t *testing.T) {
	tolerance := 5 * time.Minute

	tests := []struct {
		name       string
		backupHour int
		trigger    string
		want       bool
	}{
		{"exact match", 2 * 60, "2026-03-02T02:00:00Z", true},
		{"three minutes after", 2*60 + 3, "2026-03-02T02:00:00Z", true},
		{"three minutes before", 2*60 - 3, "2026-03-02T02:00:00Z", true},
		{"edge of window", 2*60 + 5, "2026-03-02T02:00:00Z", true},
		{"just outside", 2*60 + 6, "2026-03-02T02:00:00Z", false},
		{"ten minutes off", 2*60 + 10, "2026-03-02T02:00:00Z", false},
		{"opposite end of day", 14 * 60, "2026-03-02T02:00:00Z", false},
		{"midnight wrap forward", 2, "2026-03-02T23:58:00Z", true},
		{"midnight wrap backward", 23*60 + 58, "2026-03-02T00:01:00Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := withinTolerance(tt.backupHour, fixedTime(tt.trigger), tolerance)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunScheduledFiresMatchingOwners(t *testing.T) {
	s, records, domain := schedulerFixture(t)
	s.now = func() time.Time { return fixedTime("2026-03-02T02:00:00Z") } // a Monday

	addOwner(records, 1, models.FrequencyWeekly, 2*60+3)  // inside the window
	addOwner(records, 2, models.FrequencyWeekly, 2*60+10) // outside
	addOwner(records, 3, models.FrequencyMonthly, 2*60)   // wrong frequency
	seedDeals(domain, 1, 1)
	seedDeals(domain, 2, 1)
	seedDeals(domain, 3, 1)

	s.runScheduled(context.Background(), models.FrequencyWeekly)

	one, err := records.ListBackups(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
	assert.Equal(t, models.FrequencyWeekly, one[0].Frequency)

	for _, owner := range []int64{2, 3} {
		backups, err := records.ListBackups(context.Background(), owner)
		require.NoError(t, err)
		assert.Empty(t, backups, "owner %d must not fire", owner)
	}

	// The run is recorded for catch-up bookkeeping.
	last, err := records.LastRun(context.Background(), models.RunWeeklyBackup)
	require.NoError(t, err)
	require.NotNil(t, last)
}

func TestRunScheduledFiresAtMostOncePerWindow(t *testing.T) {
	s, records, domain := schedulerFixture(t)
	addOwner(records, 1, models.FrequencyWeekly, 2*60)
	seedDeals(domain, 1, 1)

	s.now = func() time.Time { return fixedTime("2026-03-02T02:00:00Z") }
	s.runScheduled(context.Background(), models.FrequencyWeekly)

	// A second trigger minutes later must not back up the same owner again.
	s.now = func() time.Time { return fixedTime("2026-03-02T02:04:00Z") }
	s.runScheduled(context.Background(), models.FrequencyWeekly)

	backups, err := records.ListBackups(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestRunScheduledIsolatesOwnerFailures(t *testing.T) {
	s, records, domain := schedulerFixture(t)
	s.now = func() time.Time { return fixedTime("2026-03-02T02:00:00Z") }

	// Owner 1 has a data type that fetches fine but owner 2's settings carry
	// an unknown type; its generation fails without stopping owner 3.
	addOwner(records, 1, models.FrequencyWeekly, 2*60)
	addOwner(records, 2, models.FrequencyWeekly, 2*60)
	records.settings[2].DataTypes = []models.EntityType{models.EntityType("BROKEN")}
	addOwner(records, 3, models.FrequencyWeekly, 2*60)
	seedDeals(domain, 1, 1)
	seedDeals(domain, 3, 1)

	s.runScheduled(context.Background(), models.FrequencyWeekly)

	for _, owner := range []int64{1, 3} {
		backups, err := records.ListBackups(context.Background(), owner)
		require.NoError(t, err)
		assert.Len(t, backups, 1, "owner %d", owner)
	}
}

func TestCatchUpRunsMissedSweepAndWeekly(t *testing.T) {
	s, records, domain := schedulerFixture(t)
	s.now = func() time.Time { return fixedTime("2026-03-04T09:00:00Z") } // a Wednesday

	addOwner(records, 1, models.FrequencyWeekly, 2*60)
	seedDeals(domain, 1, 1)

	// Empty run history: both the sweep and the weekly run are overdue.
	s.catchUp(context.Background())

	backups, err := records.ListBackups(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	sweep, err := records.LastRun(context.Background(), models.RunRetentionSweep)
	require.NoError(t, err)
	assert.NotNil(t, sweep)
	weekly, err := records.LastRun(context.Background(), models.RunWeeklyBackup)
	require.NoError(t, err)
	assert.NotNil(t, weekly)
}

func TestCatchUpSkipsRecentRuns(t *testing.T) {
	s, records, domain := schedulerFixture(t)
	now := fixedTime("2026-03-04T09:00:00Z")
	s.now = func() time.Time { return now }

	addOwner(records, 1, models.FrequencyWeekly, 2*60)
	seedDeals(domain, 1, 1)

	// Both runs already happened this week.
	require.NoError(t, records.RecordRun(context.Background(), models.RunRetentionSweep, now.Add(-2*time.Hour)))
	require.NoError(t, records.RecordRun(context.Background(), models.RunWeeklyBackup, now.Add(-36*time.Hour)))

	s.catchUp(context.Background())

	backups, err := records.ListBackups(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestNextRunWeekly(t *testing.T) {
	settings := &models.OwnerSettings{
		OwnerID:    1,
		Frequency:  models.FrequencyWeekly,
		BackupHour: 2 * 60,
	}

	// Wednesday: next run is the following Monday 02:00.
	next := NextRun(settings, fixedTime("2026-03-04T09:00:00Z"))
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, fixedTime("2026-03-09T02:00:00Z"), next)

	// Monday before the hour: same day.
	next = NextRun(settings, fixedTime("2026-03-02T01:00:00Z"))
	assert.Equal(t, fixedTime("2026-03-02T02:00:00Z"), next)

	// Monday after the hour: a week later.
	next = NextRun(settings, fixedTime("2026-03-02T03:00:00Z"))
	assert.Equal(t, fixedTime("2026-03-09T02:00:00Z"), next)
}

func TestNextRunMonthly(t *testing.T) {
	settings := &models.OwnerSettings{
		OwnerID:    1,
		Frequency:  models.FrequencyMonthly,
		BackupHour: 3*60 + 30,
	}

	next := NextRun(settings, fixedTime("2026-03-15T12:00:00Z"))
	assert.Equal(t, fixedTime("2026-04-01T03:30:00Z"), next)

	// On the 1st before the hour: same day.
	next = NextRun(settings, fixedTime("2026-03-01T01:00:00Z"))
	assert.Equal(t, fixedTime("2026-03-01T03:30:00Z"), next)
}

func TestNextRunIsAlwaysInTheFuture(t *testing.T) {
	settings := &models.OwnerSettings{
		OwnerID:    1,
		Frequency:  models.FrequencyWeekly,
		BackupHour: 2 * 60,
	}
	now := fixedTime("2026-03-02T02:00:00Z") // exactly the slot

	next := NextRun(settings, now)
	assert.True(t, next.After(now))
}
