package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CompanyStore = (*CompanyRepo)(nil)

// CompanyRepo is the SQLite implementation of the CompanyStore port interface.
type CompanyRepo struct {
	db *DB
}

// NewCompanyRepo creates a new CompanyRepo backed by the given DB.
func NewCompanyRepo(db *DB) *CompanyRepo {
	return &CompanyRepo{db: db}
}

const companyColumns = `id, user_id, name, gateway_registration_id, certificate_uploaded_to_gateway,
	municipal_credentials_configured_at_gateway, municipality_code, fiscal_connection_status,
	fiscal_connection_error, last_connection_check, created_at, updated_at`

// Get retrieves a company by id. Returns nil, nil if the company does not exist.
func (r *CompanyRepo) Get(ctx context.Context, id string) (*model.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = ?`

	company, err := scanCompany(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get company %s: %w", id, err)
	}
	return company, nil
}

// Upsert inserts the company or updates its externally owned fields. The
// connection status triad is only written on insert.
func (r *CompanyRepo) Upsert(ctx context.Context, c model.Company) error {
	const query = `
		INSERT INTO companies (
			id, user_id, name, gateway_registration_id, certificate_uploaded_to_gateway,
			municipal_credentials_configured_at_gateway, municipality_code,
			fiscal_connection_status, fiscal_connection_error, last_connection_check,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			gateway_registration_id = excluded.gateway_registration_id,
			certificate_uploaded_to_gateway = excluded.certificate_uploaded_to_gateway,
			municipal_credentials_configured_at_gateway = excluded.municipal_credentials_configured_at_gateway,
			municipality_code = excluded.municipality_code,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var municipality any
	if c.MunicipalityCode != nil {
		municipality = *c.MunicipalityCode
	}

	var checkedAt any
	if !c.Connection.CheckedAt.IsZero() {
		checkedAt = formatTime(c.Connection.CheckedAt)
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, nullableString(c.GatewayRegistrationID),
		boolToInt(c.CertificateUploadedToGateway),
		boolToInt(c.MunicipalCredentialsConfiguredAtGateway),
		municipality,
		nullableString(string(c.Connection.Status)), nullableString(c.Connection.Error), checkedAt,
		formatTime(createdAt), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert company %s: %w", c.ID, err)
	}
	return nil
}

// UpdateConnectionState persists the status triad for the company.
func (r *CompanyRepo) UpdateConnectionState(ctx context.Context, id string, state model.ConnectionState) error {
	return updateConnectionState(ctx, r.db.Writer, id, state)
}

// Ping reports whether the database is reachable.
func (r *CompanyRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// updateConnectionState writes the status triad through ex so it can take part
// in a credential transaction.
func updateConnectionState(ctx context.Context, ex execer, id string, state model.ConnectionState) error {
	const query = `
		UPDATE companies
		SET fiscal_connection_status = ?, fiscal_connection_error = ?, last_connection_check = ?, updated_at = ?
		WHERE id = ?
	`

	checkedAt := state.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}

	result, err := ex.ExecContext(ctx, query,
		nullableString(string(state.Status)), nullableString(state.Error),
		formatTime(checkedAt), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update connection state of company %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update connection state of company %s: %w", id, model.ErrCompanyNotFound)
	}
	return nil
}

func scanCompany(s scanner) (*model.Company, error) {
	var (
		c                            model.Company
		registrationID, municipality sql.NullString
		status, connErr, checkedAt   sql.NullString
		certUploaded, municipalLogin int
		createdAt, updatedAt         string
	)

	err := s.Scan(&c.ID, &c.UserID, &c.Name, &registrationID, &certUploaded, &municipalLogin,
		&municipality, &status, &connErr, &checkedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.GatewayRegistrationID = registrationID.String
	c.CertificateUploadedToGateway = certUploaded != 0
	c.MunicipalCredentialsConfiguredAtGateway = municipalLogin != 0
	if municipality.Valid {
		code := municipality.String
		c.MunicipalityCode = &code
	}
	c.Connection.Status = model.ConnectionStatus(status.String)
	c.Connection.Error = connErr.String

	checked, err := parseNullTime(checkedAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_connection_check: %w", err)
	}
	if checked != nil {
		c.Connection.CheckedAt = *checked
	}

	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &c, nil
}
