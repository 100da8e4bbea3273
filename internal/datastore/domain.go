package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crm-backup-service/internal/backup"
	"crm-backup-service/internal/models"
)

// ListDeals returns the owner's deals in insertion order.
func (s *Store) ListDeals(ctx context.Context, ownerID int64) ([]models.Deal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, company_id, contact_name, units, expected_revenue,
			description, owner_id, close_date, deal_number, probability,
			phase, created_at
		FROM deals WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		var (
			d           models.Deal
			companyID   sql.NullInt64
			contactName sql.NullString
			phase       string
		)
		err := rows.Scan(&d.ID, &d.Name, &companyID, &contactName, &d.Units,
			&d.ExpectedRevenue, &d.Description, &d.OwnerID, &d.CloseDate,
			&d.DealNumber, &d.Probability, &phase, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		if companyID.Valid {
			d.CompanyID = &companyID.Int64
		}
		if contactName.Valid {
			d.ContactName = &contactName.String
		}
		d.Phase, _ = models.ParseDealPhase(phase)
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// ListCompanies returns the owner's companies in insertion order.
func (s *Store) ListCompanies(ctx context.Context, ownerID int64) ([]models.Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tax_id, address, city, phone, email, owner_id, created_at
		FROM companies WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		var c models.Company
		err := rows.Scan(&c.ID, &c.Name, &c.TaxID, &c.Address, &c.City,
			&c.Phone, &c.Email, &c.OwnerID, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// ListContacts returns the owner's contacts in insertion order.
func (s *Store) ListContacts(ctx context.Context, ownerID int64) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, position, company_id, owner_id, created_at
		FROM contacts WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var (
			c         models.Contact
			companyID sql.NullInt64
		)
		err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Position,
			&companyID, &c.OwnerID, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		if companyID.Valid {
			c.CompanyID = &companyID.Int64
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ListEquipment returns the whole equipment fleet.
func (s *Store) ListEquipment(ctx context.Context) ([]models.Equipment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, serial_number, model, manufacturer, status, purchase_date, notes
		FROM equipment ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	defer rows.Close()

	var fleet []models.Equipment
	for rows.Next() {
		var (
			e      models.Equipment
			status string
		)
		err := rows.Scan(&e.ID, &e.SerialNumber, &e.Model, &e.Manufacturer,
			&status, &e.PurchaseDate, &e.Notes)
		if err != nil {
			return nil, fmt.Errorf("failed to scan equipment: %w", err)
		}
		e.Status, _ = models.ParseEquipmentStatus(status)
		fleet = append(fleet, e)
	}
	return fleet, rows.Err()
}

// ListSIMCards returns the whole SIM fleet.
func (s *Store) ListSIMCards(ctx context.Context) ([]models.SIMCard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, iccid, msisdn, carrier, status, activation_date
		FROM sim_cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sim cards: %w", err)
	}
	defer rows.Close()

	var sims []models.SIMCard
	for rows.Next() {
		var (
			card   models.SIMCard
			status string
		)
		err := rows.Scan(&card.ID, &card.ICCID, &card.MSISDN, &card.Carrier,
			&status, &card.ActivationDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sim card: %w", err)
		}
		card.Status, _ = models.ParseSIMStatus(status)
		sims = append(sims, card)
	}
	return sims, rows.Err()
}

// FindCompanyIDByName resolves an owner-scoped company reference.
func (s *Store) FindCompanyIDByName(ctx context.Context, ownerID int64, name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM companies WHERE owner_id = ? AND name = ? LIMIT 1",
		ownerID, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up company by name: %w", err)
	}
	return id, true, nil
}

// ContactExists reports whether the owner has a contact with that name.
func (s *Store) ContactExists(ctx context.Context, ownerID int64, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM contacts WHERE owner_id = ? AND name = ? LIMIT 1",
		ownerID, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up contact by name: %w", err)
	}
	return true, nil
}

// EquipmentSerials returns the serial numbers currently in the fleet.
func (s *Store) EquipmentSerials(ctx context.Context) (map[string]bool, error) {
	return s.collectKeys(ctx, "SELECT serial_number FROM equipment")
}

// SIMICCIDs returns the ICCIDs currently in the fleet.
func (s *Store) SIMICCIDs(ctx context.Context) (map[string]bool, error) {
	return s.collectKeys(ctx, "SELECT iccid FROM sim_cards")
}

func (s *Store) collectKeys(ctx context.Context, query string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to collect natural keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan natural key: %w", err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

// BeginRestore opens the dedicated restore transaction. The caller owns ctx
// and its timeout; the transaction dies with it.
func (s *Store) BeginRestore(ctx context.Context) (backup.RestoreTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin restore transaction: %w", err)
	}
	return &restoreTx{tx: tx}, nil
}

type restoreTx struct {
	tx *sql.Tx
}

func (t *restoreTx) DeleteDealsByOwner(ctx context.Context, ownerID int64) error {
	return t.deleteByOwner(ctx, "deals", ownerID)
}

func (t *restoreTx) DeleteCompaniesByOwner(ctx context.Context, ownerID int64) error {
	return t.deleteByOwner(ctx, "companies", ownerID)
}

func (t *restoreTx) DeleteContactsByOwner(ctx context.Context, ownerID int64) error {
	return t.deleteByOwner(ctx, "contacts", ownerID)
}

func (t *restoreTx) deleteByOwner(ctx context.Context, table string, ownerID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM "+table+" WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("failed to clear %s for owner %d: %w", table, ownerID, err)
	}
	return nil
}

// InsertDeals writes one batch as a multi-row insert.
func (t *restoreTx) InsertDeals(ctx context.Context, rows []models.Deal) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*12)
	for _, d := range rows {
		args = append(args, d.Name, nullableInt64(d.CompanyID),
			nullableString(d.ContactName), d.Units, d.ExpectedRevenue,
			d.Description, d.OwnerID, d.CloseDate, d.DealNumber,
			d.Probability, string(d.Phase), d.CreatedAt)
	}
	query := `INSERT INTO deals (name, company_id, contact_name, units,
		expected_revenue, description, owner_id, close_date, deal_number,
		probability, phase, created_at) VALUES ` + placeholders(len(rows), 12)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert deals batch: %w", err)
	}
	return nil
}

// InsertCompanies writes one batch as a multi-row insert.
func (t *restoreTx) InsertCompanies(ctx context.Context, rows []models.Company) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*8)
	for _, c := range rows {
		args = append(args, c.Name, c.TaxID, c.Address, c.City, c.Phone,
			c.Email, c.OwnerID, c.CreatedAt)
	}
	query := `INSERT INTO companies (name, tax_id, address, city, phone,
		email, owner_id, created_at) VALUES ` + placeholders(len(rows), 8)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert companies batch: %w", err)
	}
	return nil
}

// InsertContacts writes one batch as a multi-row insert.
func (t *restoreTx) InsertContacts(ctx context.Context, rows []models.Contact) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*7)
	for _, c := range rows {
		args = append(args, c.Name, c.Email, c.Phone, c.Position,
			nullableInt64(c.CompanyID), c.OwnerID, c.CreatedAt)
	}
	query := `INSERT INTO contacts (name, email, phone, position, company_id,
		owner_id, created_at) VALUES ` + placeholders(len(rows), 7)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert contacts batch: %w", err)
	}
	return nil
}

// InsertEquipment writes one batch as a multi-row insert.
func (t *restoreTx) InsertEquipment(ctx context.Context, rows []models.Equipment) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*6)
	for _, e := range rows {
		args = append(args, e.SerialNumber, e.Model, e.Manufacturer,
			string(e.Status), e.PurchaseDate, e.Notes)
	}
	query := `INSERT INTO equipment (serial_number, model, manufacturer,
		status, purchase_date, notes) VALUES ` + placeholders(len(rows), 6)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert equipment batch: %w", err)
	}
	return nil
}

// InsertSIMCards writes one batch as a multi-row insert.
func (t *restoreTx) InsertSIMCards(ctx context.Context, rows []models.SIMCard) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*5)
	for _, card := range rows {
		args = append(args, card.ICCID, card.MSISDN, card.Carrier,
			string(card.Status), card.ActivationDate)
	}
	query := `INSERT INTO sim_cards (iccid, msisdn, carrier, status,
		activation_date) VALUES ` + placeholders(len(rows), 5)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert sim cards batch: %w", err)
	}
	return nil
}

func (t *restoreTx) Commit() error {
	return t.tx.Commit()
}

func (t *restoreTx) Rollback() error {
	return t.tx.Rollback()
}

// placeholders builds "(?, ..., ?), (?, ..., ?)" for a multi-row insert.
func placeholders(rowCount, colCount int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", colCount), ", ") + ")"
	rows := make([]string, rowCount)
	for i := range rows {
		rows[i] = row
	}
	return strings.Join(rows, ", ")
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
