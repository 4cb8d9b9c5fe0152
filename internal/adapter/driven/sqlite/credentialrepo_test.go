package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

func certificateIdentity(c model.Company, expiresAt *time.Time) model.FiscalIdentity {
	c.Connection = model.ConnectionState{
		Status:    model.ConnectionStatusNotConnected,
		CheckedAt: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}
	return model.FiscalIdentity{
		Company: c,
		Credential: &model.FiscalCredential{
			CompanyID:        c.ID,
			Type:             model.CredentialTypeCertificate,
			EncryptedPayload: "aXY=:dGFn:Y2lwaGVy",
			Metadata: model.CredentialMetadata{
				Filename:     "cert.pfx",
				HasPassword:  true,
				PasswordHash: "00ff:aabb",
			},
			ExpiresAt: expiresAt,
		},
	}
}

func TestCredentialRepo_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	c := seedCompany(t, db, "c1")
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, certificateIdentity(c, &expires)))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.NotZero(t, got.ID)
	assert.Equal(t, model.CredentialTypeCertificate, got.Type)
	assert.Equal(t, "aXY=:dGFn:Y2lwaGVy", got.EncryptedPayload)
	assert.Equal(t, "cert.pfx", got.Metadata.Filename)
	assert.True(t, got.Metadata.HasPassword)
	assert.Equal(t, "00ff:aabb", got.Metadata.PasswordHash)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	assert.Nil(t, got.LastUsedAt)

	company, err := NewCompanyRepo(db).Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionStatusNotConnected, company.Connection.Status)
	assert.True(t, time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC).Equal(company.Connection.CheckedAt))
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)

	got, err := repo.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialRepo_SaveReplacesExisting(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	c := seedCompany(t, db, "c1")
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, certificateIdentity(c, &expires)))

	first, err := repo.Get(ctx, "c1")
	require.NoError(t, err)

	municipal := model.FiscalIdentity{
		Company: c,
		Credential: &model.FiscalCredential{
			CompanyID:        "c1",
			Type:             model.CredentialTypeMunicipal,
			EncryptedPayload: "new-payload",
			Metadata:         model.CredentialMetadata{MaskedUsername: "jo***"},
		},
	}
	require.NoError(t, repo.Save(ctx, municipal))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "one credential row per company")
	assert.Equal(t, model.CredentialTypeMunicipal, got.Type)
	assert.Equal(t, "new-payload", got.EncryptedPayload)
	assert.Equal(t, "jo***", got.Metadata.MaskedUsername)
	assert.Empty(t, got.Metadata.Filename)
	assert.Nil(t, got.ExpiresAt)
}

func TestCredentialRepo_SaveUnknownCompanyRollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	ghost := model.Company{ID: "ghost"}
	err := repo.Save(ctx, certificateIdentity(ghost, nil))
	require.Error(t, err)

	got, err := repo.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialRepo_SaveNilCredential(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)

	err := repo.Save(context.Background(), model.FiscalIdentity{Company: model.Company{ID: "c1"}})
	assert.Error(t, err)
}

func TestCredentialRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	c := seedCompany(t, db, "c1")
	require.NoError(t, repo.Save(ctx, certificateIdentity(c, nil)))

	state := model.ConnectionState{
		Status:    model.ConnectionStatusNotConnected,
		Error:     "credential revoked",
		CheckedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Delete(ctx, "c1", state))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	company, err := NewCompanyRepo(db).Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionStatusNotConnected, company.Connection.Status)
	assert.Equal(t, "credential revoked", company.Connection.Error)
}

func TestCredentialRepo_DeleteMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	seedCompany(t, db, "c1")

	err := repo.Delete(ctx, "c1", model.ConnectionState{Status: model.ConnectionStatusNotConnected})
	assert.ErrorIs(t, err, model.ErrCredentialNotFound)

	company, err := NewCompanyRepo(db).Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionStatusUnset, company.Connection.Status, "state untouched when nothing was deleted")
}

func TestCredentialRepo_TouchLastUsed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	c := seedCompany(t, db, "c1")
	require.NoError(t, repo.Save(ctx, certificateIdentity(c, nil)))

	at := time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, repo.TouchLastUsed(ctx, "c1", at))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, at.Equal(*got.LastUsedAt))
}

func TestCredentialRepo_ListCertificatesWithExpiry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	late := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	early := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, certificateIdentity(seedCompany(t, db, "late"), &late)))
	require.NoError(t, repo.Save(ctx, certificateIdentity(seedCompany(t, db, "early"), &early)))
	require.NoError(t, repo.Save(ctx, certificateIdentity(seedCompany(t, db, "no-expiry"), nil)))

	municipal := seedCompany(t, db, "municipal")
	require.NoError(t, repo.Save(ctx, model.FiscalIdentity{
		Company: municipal,
		Credential: &model.FiscalCredential{
			CompanyID:        municipal.ID,
			Type:             model.CredentialTypeMunicipal,
			EncryptedPayload: "x",
			ExpiresAt:        &early,
		},
	}))

	creds, err := repo.ListCertificatesWithExpiry(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "early", creds[0].CompanyID)
	assert.Equal(t, "late", creds[1].CompanyID)
}
