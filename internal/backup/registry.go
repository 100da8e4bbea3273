package backup

import (
	"context"
	"strconv"

	"crm-backup-service/internal/models"
)

// entityDescriptor binds one EntityType to its CSV column schema, its
// snapshot fetch and its restore procedure. The table is closed: descriptorFor
// switches exhaustively over the enum, so adding a type is a compile-time
// extension rather than a string-keyed lookup.
type entityDescriptor struct {
	entityType models.EntityType

	// headers is the versioned CSV column order. It is the wire format for
	// restore and must remain stable.
	headers []string

	// ownerScoped marks types that are fully replaced on restore: all of
	// the owner's current rows are deleted before the rebuild.
	ownerScoped bool

	fetch   func(ctx context.Context, domain DomainStore, ownerID int64) ([][]string, error)
	restore func(ctx context.Context, run *restoreRun, rows [][]string) error
}

// descriptorFor returns the descriptor for an entity type.
func descriptorFor(et models.EntityType) (*entityDescriptor, error) {
	switch et {
	case models.EntityDeals:
		return &dealsDescriptor, nil
	case models.EntityCompanies:
		return &companiesDescriptor, nil
	case models.EntityContacts:
		return &contactsDescriptor, nil
	case models.EntityEquipment:
		return &equipmentDescriptor, nil
	case models.EntitySIMCards:
		return &simCardsDescriptor, nil
	}
	return nil, NewValidationError("unknown entity type: "+string(et), nil)
}

var dealsDescriptor = entityDescriptor{
	entityType:  models.EntityDeals,
	ownerScoped: true,
	headers: []string{
		"name", "companyId", "contactName", "units", "expectedRevenue",
		"description", "ownerId", "closeDate", "dealNumber", "probability",
		"phase", "createdAt",
	},
	fetch: func(ctx context.Context, domain DomainStore, ownerID int64) ([][]string, error) {
		deals, err := domain.ListDeals(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(deals))
		for _, d := range deals {
			rows = append(rows, []string{
				d.Name,
				formatInt64Ptr(d.CompanyID),
				formatStringPtr(d.ContactName),
				strconv.Itoa(d.Units),
				formatFloat(d.ExpectedRevenue),
				d.Description,
				strconv.FormatInt(d.OwnerID, 10),
				formatDate(d.CloseDate),
				d.DealNumber,
				strconv.Itoa(d.Probability),
				string(d.Phase),
				formatTime(d.CreatedAt),
			})
		}
		return rows, nil
	},
}

var companiesDescriptor = entityDescriptor{
	entityType:  models.EntityCompanies,
	ownerScoped: true,
	headers: []string{
		"name", "taxId", "address", "city", "phone", "email", "ownerId",
		"createdAt",
	},
	fetch: func(ctx context.Context, domain DomainStore, ownerID int64) ([][]string, error) {
		companies, err := domain.ListCompanies(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(companies))
		for _, c := range companies {
			rows = append(rows, []string{
				c.Name,
				c.TaxID,
				c.Address,
				c.City,
				c.Phone,
				c.Email,
				strconv.FormatInt(c.OwnerID, 10),
				formatTime(c.CreatedAt),
			})
		}
		return rows, nil
	},
}

var contactsDescriptor = entityDescriptor{
	entityType:  models.EntityContacts,
	ownerScoped: true,
	headers: []string{
		"name", "email", "phone", "position", "companyId", "ownerId",
		"createdAt",
	},
	fetch: func(ctx context.Context, domain DomainStore, ownerID int64) ([][]string, error) {
		contacts, err := domain.ListContacts(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(contacts))
		for _, c := range contacts {
			rows = append(rows, []string{
				c.Name,
				c.Email,
				c.Phone,
				c.Position,
				formatInt64Ptr(c.CompanyID),
				strconv.FormatInt(c.OwnerID, 10),
				formatTime(c.CreatedAt),
			})
		}
		return rows, nil
	},
}

var equipmentDescriptor = entityDescriptor{
	entityType:  models.EntityEquipment,
	ownerScoped: false,
	headers: []string{
		"serialNumber", "model", "manufacturer", "status", "purchaseDate",
		"notes",
	},
	fetch: func(ctx context.Context, domain DomainStore, ownerID int64) ([][]string, error) {
		equipment, err := domain.ListEquipment(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(equipment))
		for _, e := range equipment {
			rows = append(rows, []string{
				e.SerialNumber,
				e.Model,
				e.Manufacturer,
				string(e.Status),
				formatDate(e.PurchaseDate),
				e.Notes,
			})
		}
		return rows, nil
	},
}

var simCardsDescriptor = entityDescriptor{
	entityType:  models.EntitySIMCards,
	ownerScoped: false,
	headers: []string{
		"iccid", "msisdn", "carrier", "status", "activationDate",
	},
	fetch: func(ctx context.Context, domain DomainStore, ownerID int64) ([][]string, error) {
		sims, err := domain.ListSIMCards(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(sims))
		for _, s := range sims {
			rows = append(rows, []string{
				s.ICCID,
				s.MSISDN,
				s.Carrier,
				string(s.Status),
				formatDate(s.ActivationDate),
			})
		}
		return rows, nil
	},
}

// The restore fields are assigned in init to avoid an initialization cycle:
// each restorer validates row width against its descriptor's headers.
func init() {
	dealsDescriptor.restore = restoreDeals
	companiesDescriptor.restore = restoreCompanies
	contactsDescriptor.restore = restoreContacts
	equipmentDescriptor.restore = restoreEquipment
	simCardsDescriptor.restore = restoreSIMCards
}
