package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backup-service/internal/models"
)

func TestListDealsScansNullableReferences(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	cols := []string{"id", "name", "company_id", "contact_name", "units", "expected_revenue",
		"description", "owner_id", "close_date", "deal_number", "probability", "phase", "created_at"}

	mock.ExpectQuery("SELECT (.+) FROM deals WHERE owner_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), "Fiber rollout", int64(7), "Jane Smith", 3, 12500.5,
				"Q3 deal", int64(42), now, "D-100", 75, "NEGOTIATION", now).
			AddRow(int64(2), "Renewal", nil, nil, 1, 900.0,
				"", int64(42), now, "D-101", 40, "PROSPECTING", now))

	deals, err := store.ListDeals(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, deals, 2)

	require.NotNil(t, deals[0].CompanyID)
	assert.Equal(t, int64(7), *deals[0].CompanyID)
	require.NotNil(t, deals[0].ContactName)
	assert.Equal(t, "Jane Smith", *deals[0].ContactName)
	assert.Equal(t, models.DealPhaseNegotiation, deals[0].Phase)

	assert.Nil(t, deals[1].CompanyID)
	assert.Nil(t, deals[1].ContactName)
}

func TestFindCompanyIDByName(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM companies WHERE owner_id").
		WithArgs(int64(42), "Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, found, err := store.FindCompanyIDByName(context.Background(), 42, "Acme")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(7), id)

	mock.ExpectQuery("SELECT id FROM companies WHERE owner_id").
		WithArgs(int64(42), "Nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, found, err = store.FindCompanyIDByName(context.Background(), 42, "Nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestContactExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT 1 FROM contacts WHERE owner_id").
		WithArgs(int64(42), "Jane Smith").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := store.ContactExists(context.Background(), 42, "Jane Smith")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM contacts WHERE owner_id").
		WithArgs(int64(42), "Ghost").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err = store.ContactExists(context.Background(), 42, "Ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEquipmentSerials(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT serial_number FROM equipment").
		WillReturnRows(sqlmock.NewRows([]string{"serial_number"}).
			AddRow("SN-1").AddRow("SN-2"))

	serials, err := store.EquipmentSerials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"SN-1": true, "SN-2": true}, serials)
}

func TestRestoreTransactionFlow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM companies WHERE owner_id").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO companies").
		WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectCommit()

	tx, err := store.BeginRestore(context.Background())
	require.NoError(t, err)

	require.NoError(t, tx.DeleteCompaniesByOwner(context.Background(), 42))
	require.NoError(t, tx.InsertCompanies(context.Background(), []models.Company{
		{Name: "Acme", OwnerID: 42, CreatedAt: now},
		{Name: "Beta", OwnerID: 42, CreatedAt: now},
	}))
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreTransactionRollback(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM deals WHERE owner_id").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := store.BeginRestore(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.DeleteDealsByOwner(context.Background(), 42))
	require.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchesSkipEmptySlices(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := store.BeginRestore(context.Background())
	require.NoError(t, err)

	// No INSERT statements are issued for empty batches.
	require.NoError(t, tx.InsertDeals(context.Background(), nil))
	require.NoError(t, tx.InsertEquipment(context.Background(), nil))
	require.NoError(t, tx.InsertSIMCards(context.Background(), nil))
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "(?)", placeholders(1, 1))
	assert.Equal(t, "(?, ?), (?, ?)", placeholders(2, 2))
	assert.Equal(t, "(?, ?, ?)", placeholders(1, 3))
}
