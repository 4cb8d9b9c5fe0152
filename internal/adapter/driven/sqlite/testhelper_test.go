package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database with the
// fiscal schema applied. The name is derived from t.Name() so parallel tests
// stay isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	safeName := url.PathEscape(t.Name())
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// seedCompany inserts a company with a gateway registration and returns it.
func seedCompany(t *testing.T, db *DB, id string) model.Company {
	t.Helper()

	code := "3550308"
	c := model.Company{
		ID:                    id,
		UserID:                "user-" + id,
		Name:                  "Company " + id,
		GatewayRegistrationID: "gw-" + id,
		MunicipalityCode:      &code,
		CreatedAt:             time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := NewCompanyRepo(db).Upsert(context.Background(), c); err != nil {
		t.Fatalf("seed company %s: %v", id, err)
	}
	return c
}
