package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *OwnerSettings {
	return &OwnerSettings{
		OwnerID:    1,
		DataTypes:  AllEntityTypes(),
		Frequency:  FrequencyWeekly,
		BackupHour: 120,
	}
}

func TestParseEntityType(t *testing.T) {
	for _, et := range AllEntityTypes() {
		parsed, err := ParseEntityType(string(et))
		require.NoError(t, err)
		assert.Equal(t, et, parsed)
	}

	_, err := ParseEntityType("PETS")
	assert.Error(t, err)
	_, err = ParseEntityType("deals")
	assert.Error(t, err, "entity types are case sensitive")
}

func TestOwnerSettingsValidate(t *testing.T) {
	assert.NoError(t, validSettings().Validate())

	tests := []struct {
		name   string
		mutate func(*OwnerSettings)
	}{
		{"missing owner", func(s *OwnerSettings) { s.OwnerID = 0 }},
		{"manual frequency", func(s *OwnerSettings) { s.Frequency = FrequencyManual }},
		{"unknown frequency", func(s *OwnerSettings) { s.Frequency = "DAILY" }},
		{"negative hour", func(s *OwnerSettings) { s.BackupHour = -1 }},
		{"hour past midnight", func(s *OwnerSettings) { s.BackupHour = 24 * 60 }},
		{"no data types", func(s *OwnerSettings) { s.DataTypes = nil }},
		{"unknown data type", func(s *OwnerSettings) { s.DataTypes = []EntityType{"PETS"} }},
		{"linked without credentials", func(s *OwnerSettings) { s.CloudLinked = true }},
		{"credentials without link", func(s *OwnerSettings) {
			s.CloudCredentials = &CloudCredentials{AccessToken: "t"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestOwnerSettingsHasDataType(t *testing.T) {
	s := &OwnerSettings{DataTypes: []EntityType{EntityDeals, EntitySIMCards}}
	assert.True(t, s.HasDataType(EntityDeals))
	assert.True(t, s.HasDataType(EntitySIMCards))
	assert.False(t, s.HasDataType(EntityCompanies))
}

func TestBackupExpired(t *testing.T) {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	b := &Backup{ExpiresAt: expires}

	assert.False(t, b.Expired(expires.Add(-time.Second)))
	assert.True(t, b.Expired(expires))
	assert.True(t, b.Expired(expires.Add(time.Second)))
}

func TestStatusParsersFallBackToDefaults(t *testing.T) {
	phase, ok := ParseDealPhase("WON")
	assert.True(t, ok)
	assert.Equal(t, DealPhaseWon, phase)
	phase, ok = ParseDealPhase("GUESSING")
	assert.False(t, ok)
	assert.Equal(t, DealPhaseProspecting, phase)

	es, ok := ParseEquipmentStatus("RETIRED")
	assert.True(t, ok)
	assert.Equal(t, EquipmentRetired, es)
	es, ok = ParseEquipmentStatus("")
	assert.False(t, ok)
	assert.Equal(t, EquipmentInStock, es)

	ss, ok := ParseSIMStatus("SUSPENDED")
	assert.True(t, ok)
	assert.Equal(t, SIMSuspended, ss)
	ss, ok = ParseSIMStatus("broken")
	assert.False(t, ok)
	assert.Equal(t, SIMInactive, ss)
}
