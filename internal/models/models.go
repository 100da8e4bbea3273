// Package models holds the record types shared between the backup pipeline
// and the data store: owner backup settings, backup snapshot records, the
// scheduler run log, and the business rows eligible for backup.
package models

import (
	"fmt"
	"time"
)

// EntityType identifies a category of business data eligible for backup.
// The set is closed; the registry in the backup package dispatches on it
// with an exhaustive switch.
type EntityType string

const (
	EntityDeals     EntityType = "DEALS"
	EntityCompanies EntityType = "COMPANIES"
	EntityContacts  EntityType = "CONTACTS"
	EntityEquipment EntityType = "EQUIPMENT"
	EntitySIMCards  EntityType = "SIM_CARDS"
)

// AllEntityTypes returns every backup-eligible entity type in a stable order.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityDeals,
		EntityCompanies,
		EntityContacts,
		EntityEquipment,
		EntitySIMCards,
	}
}

// ParseEntityType converts a string into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	et := EntityType(s)
	switch et {
	case EntityDeals, EntityCompanies, EntityContacts, EntityEquipment, EntitySIMCards:
		return et, nil
	}
	return "", fmt.Errorf("unknown entity type: %q", s)
}

// Frequency labels how a backup run was triggered. WEEKLY and MONTHLY are
// valid scheduling frequencies; MANUAL only ever appears as a run label.
type Frequency string

const (
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyManual  Frequency = "MANUAL"
)

// BackupStatus of a persisted snapshot record. Generation is synchronous and
// records are only written on success, so COMPLETED is the only status.
type BackupStatus string

const BackupStatusCompleted BackupStatus = "COMPLETED"

// RunKind identifies a scheduler run recorded in the run log.
type RunKind string

const (
	RunRetentionSweep RunKind = "retention_sweep"
	RunWeeklyBackup   RunKind = "weekly_backup"
	RunMonthlyBackup  RunKind = "monthly_backup"
)

// CloudCredentials is a versioned OAuth2 token pair. It is replaced as a
// whole on refresh, never mutated field by field.
type CloudCredentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	Version      int       `json:"version"`
}

// OwnerSettings holds the per-owner backup configuration. One row per owner,
// created lazily on first access and never deleted.
type OwnerSettings struct {
	OwnerID           int64
	DataTypes         []EntityType
	Frequency         Frequency
	BackupHour        int // minutes since midnight
	CloudLinked       bool
	CloudCredentials  *CloudCredentials
	CloudFolderID     string
	CloudAccountEmail string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasDataType reports whether the owner selected the given entity type.
func (s *OwnerSettings) HasDataType(et EntityType) bool {
	for _, t := range s.DataTypes {
		if t == et {
			return true
		}
	}
	return false
}

// Validate checks the settings invariants: a valid scheduling frequency, a
// valid backup hour, known data types, and credentials present exactly when
// the cloud link is active.
func (s *OwnerSettings) Validate() error {
	if s.OwnerID <= 0 {
		return fmt.Errorf("owner id is required")
	}
	if s.Frequency != FrequencyWeekly && s.Frequency != FrequencyMonthly {
		return fmt.Errorf("invalid backup frequency: %q", s.Frequency)
	}
	if s.BackupHour < 0 || s.BackupHour >= 24*60 {
		return fmt.Errorf("backup hour out of range: %d", s.BackupHour)
	}
	if len(s.DataTypes) == 0 {
		return fmt.Errorf("at least one data type must be selected")
	}
	for _, t := range s.DataTypes {
		if _, err := ParseEntityType(string(t)); err != nil {
			return err
		}
	}
	if s.CloudLinked && s.CloudCredentials == nil {
		return fmt.Errorf("cloud link active without credentials")
	}
	if !s.CloudLinked && s.CloudCredentials != nil {
		return fmt.Errorf("credentials present without an active cloud link")
	}
	return nil
}

// Backup is one persisted snapshot record. Its artifact files must exist on
// disk until the record is purged or deleted.
type Backup struct {
	ID           string
	OwnerID      int64
	EntityType   EntityType
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Frequency    Frequency
	Status       BackupStatus
	ArtifactSize string
	PDFPath      string
	CSVPath      string
}

// Expired reports whether the backup is past its retention window.
func (b *Backup) Expired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}
