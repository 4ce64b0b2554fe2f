package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"fieldnote/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS customers (
	phone_number TEXT PRIMARY KEY,
	customer_id  TEXT NOT NULL,
	company_id   TEXT NOT NULL,
	company_name TEXT NOT NULL
);
`

// SQLiteDirectory is the customer directory behind the lookup service:
// phone number to tenant identity, one row per enrolled sender.
type SQLiteDirectory struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLiteDirectory opens (and migrates) the directory database at path.
func OpenSQLiteDirectory(path string, logger *slog.Logger) (*SQLiteDirectory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open directory db: %w", err)
	}

	// Single-writer service; WAL keeps readers unblocked during enrollment.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate directory schema: %w", err)
	}

	logger.Info("opened customer directory", "path", path)
	return &SQLiteDirectory{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (d *SQLiteDirectory) Close() error {
	return d.db.Close()
}

// FindByPhone returns the identity enrolled for a phone number.
func (d *SQLiteDirectory) FindByPhone(ctx context.Context, phone string) (*domain.TenantIdentity, error) {
	var identity domain.TenantIdentity
	err := d.db.QueryRowContext(ctx,
		"SELECT customer_id, company_id, company_name FROM customers WHERE phone_number = ?", phone,
	).Scan(&identity.CustomerID, &identity.CompanyID, &identity.CompanyName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no customer for phone %s", domain.ErrNotFound, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}
	return &identity, nil
}

// Upsert enrolls or updates a sender.
func (d *SQLiteDirectory) Upsert(ctx context.Context, phone string, identity domain.TenantIdentity) error {
	if phone == "" || identity.CustomerID == "" || identity.CompanyID == "" {
		return fmt.Errorf("%w: phone, customer_id and company_id are required", domain.ErrInvalidInput)
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO customers (phone_number, customer_id, company_id, company_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			customer_id = excluded.customer_id,
			company_id = excluded.company_id,
			company_name = excluded.company_name`,
		phone, identity.CustomerID, identity.CompanyID, identity.CompanyName)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}

	d.logger.Info("enrolled customer", "phone", phone, "customer_id", identity.CustomerID)
	return nil
}

// Remove deletes an enrollment. Removing an unknown phone is not an error.
func (d *SQLiteDirectory) Remove(ctx context.Context, phone string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM customers WHERE phone_number = ?", phone); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}

// Resolve implements domain.TenantResolver for deployments that run the
// directory in-process instead of behind the lookup function.
func (d *SQLiteDirectory) Resolve(ctx context.Context, phoneNumber string) (*domain.TenantIdentity, error) {
	clean := strings.TrimPrefix(phoneNumber, "whatsapp:")
	identity, err := d.FindByPhone(ctx, clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorizedSender, err)
	}
	return identity, nil
}

// Compile-time interface check.
var _ domain.TenantResolver = (*SQLiteDirectory)(nil)
