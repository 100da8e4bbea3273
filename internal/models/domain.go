package models

import "time"

// DealPhase is the sales pipeline stage of a deal.
type DealPhase string

const (
	DealPhaseProspecting DealPhase = "PROSPECTING"
	DealPhaseNegotiation DealPhase = "NEGOTIATION"
	DealPhaseWon         DealPhase = "WON"
	DealPhaseLost        DealPhase = "LOST"
)

// ParseDealPhase returns the phase for s, or DealPhaseProspecting when s is
// not a known phase.
func ParseDealPhase(s string) (DealPhase, bool) {
	p := DealPhase(s)
	switch p {
	case DealPhaseProspecting, DealPhaseNegotiation, DealPhaseWon, DealPhaseLost:
		return p, true
	}
	return DealPhaseProspecting, false
}

// Deal is an owner-scoped sales opportunity. CompanyID and ContactName are
// soft references; either may be absent.
type Deal struct {
	ID              int64
	Name            string
	CompanyID       *int64
	ContactName     *string
	Units           int
	ExpectedRevenue float64
	Description     string
	OwnerID         int64
	CloseDate       time.Time
	DealNumber      string
	Probability     int
	Phase           DealPhase
	CreatedAt       time.Time
}

// Company is an owner-scoped customer record.
type Company struct {
	ID        int64
	Name      string
	TaxID     string
	Address   string
	City      string
	Phone     string
	Email     string
	OwnerID   int64
	CreatedAt time.Time
}

// Contact is an owner-scoped person record, optionally tied to a company.
type Contact struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Position  string
	CompanyID *int64
	OwnerID   int64
	CreatedAt time.Time
}

// EquipmentStatus is the lifecycle state of a fleet device.
type EquipmentStatus string

const (
	EquipmentInStock  EquipmentStatus = "IN_STOCK"
	EquipmentDeployed EquipmentStatus = "DEPLOYED"
	EquipmentRetired  EquipmentStatus = "RETIRED"
)

// ParseEquipmentStatus returns the status for s, or EquipmentInStock when s
// is not a known status.
func ParseEquipmentStatus(s string) (EquipmentStatus, bool) {
	st := EquipmentStatus(s)
	switch st {
	case EquipmentInStock, EquipmentDeployed, EquipmentRetired:
		return st, true
	}
	return EquipmentInStock, false
}

// Equipment is a shared fleet device. SerialNumber is the natural key used
// for duplicate detection on restore; the table is not owner-scoped.
type Equipment struct {
	ID           int64
	SerialNumber string
	Model        string
	Manufacturer string
	Status       EquipmentStatus
	PurchaseDate time.Time
	Notes        string
}

// SIMStatus is the provisioning state of a SIM card.
type SIMStatus string

const (
	SIMInactive  SIMStatus = "INACTIVE"
	SIMActive    SIMStatus = "ACTIVE"
	SIMSuspended SIMStatus = "SUSPENDED"
)

// ParseSIMStatus returns the status for s, or SIMInactive when s is not a
// known status.
func ParseSIMStatus(s string) (SIMStatus, bool) {
	st := SIMStatus(s)
	switch st {
	case SIMInactive, SIMActive, SIMSuspended:
		return st, true
	}
	return SIMInactive, false
}

// SIMCard is a shared fleet SIM. ICCID is the natural key used for duplicate
// detection on restore; the table is not owner-scoped.
type SIMCard struct {
	ID             int64
	ICCID          string
	MSISDN         string
	Carrier        string
	Status         SIMStatus
	ActivationDate time.Time
}
