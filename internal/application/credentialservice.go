package application

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
)

// revokedMessage is persisted as the connection error after a revocation.
const revokedMessage = "credential revoked"

// municipalEnvelope is the JSON pair encrypted as the outer layer of a
// municipal credential. Both fields are themselves cipher tokens.
type municipalEnvelope struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialService stores, retrieves and revokes the encrypted fiscal
// credential of each company.
type CredentialService struct {
	store     driven.CredentialStore
	companies driven.CompanyStore
	cipher    driven.Cipher
	now       func() time.Time
}

// NewCredentialService creates a new CredentialService with all required dependencies.
func NewCredentialService(store driven.CredentialStore, companies driven.CompanyStore, cipher driven.Cipher) *CredentialService {
	return &CredentialService{
		store:     store,
		companies: companies,
		cipher:    cipher,
		now:       time.Now,
	}
}

// Store encrypts and upserts the company's credential. The company's
// connection error is cleared and its check time stamped in the same write;
// the status value itself is left for the next connection test to decide.
func (s *CredentialService) Store(
	ctx context.Context,
	companyID string,
	credType model.CredentialType,
	payload model.CredentialInput,
	opts model.StoreOptions,
) (*model.PublicCredential, error) {
	if !credType.Valid() {
		return nil, &model.CredentialError{Op: "store", CompanyID: companyID, Type: credType, Err: model.ErrInvalidType}
	}

	company, err := s.companies.Get(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load company %s: %w", companyID, err)
	}
	if company == nil {
		return nil, &model.CredentialError{Op: "store", CompanyID: companyID, Type: credType, Err: model.ErrCompanyNotFound}
	}

	cred := &model.FiscalCredential{
		CompanyID: companyID,
		Type:      credType,
	}

	switch credType {
	case model.CredentialTypeCertificate:
		err = s.sealCertificate(cred, payload, opts)
	case model.CredentialTypeMunicipal:
		err = s.sealMunicipal(cred, payload)
	}
	if err != nil {
		return nil, &model.CredentialError{Op: "store", CompanyID: companyID, Type: credType, Err: err}
	}

	company.Connection = model.ConnectionState{
		Status:    company.Connection.Status,
		CheckedAt: s.now(),
	}

	if err := s.store.Save(ctx, model.FiscalIdentity{Company: *company, Credential: cred}); err != nil {
		return nil, &model.CredentialError{Op: "store", CompanyID: companyID, Type: credType, Err: err}
	}

	saved, err := s.store.Get(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("reload credential for company %s: %w", companyID, err)
	}
	if saved == nil {
		return nil, &model.CredentialError{Op: "store", CompanyID: companyID, Type: credType, Err: model.ErrCredentialNotFound}
	}

	slog.Info("fiscal credential stored", "company_id", companyID, "type", credType)

	public := saved.ToPublic()
	return &public, nil
}

func (s *CredentialService) sealCertificate(cred *model.FiscalCredential, payload model.CredentialInput, opts model.StoreOptions) error {
	if len(bytes.TrimSpace(payload.Certificate)) == 0 {
		return fmt.Errorf("%w: certificate is required", model.ErrIncompletePayload)
	}

	encoded, raw := normalizeCertificate(payload.Certificate)

	token, err := s.cipher.Encrypt(encoded)
	if err != nil {
		return err
	}
	cred.EncryptedPayload = token
	cred.ExpiresAt = opts.ExpiresAt
	cred.Metadata = model.CredentialMetadata{
		Filename:    opts.Filename,
		HasPassword: opts.Password != "",
	}

	if opts.Password != "" {
		hash, err := s.cipher.HashPassword(opts.Password)
		if err != nil {
			return fmt.Errorf("hash certificate password: %w", err)
		}
		cred.Metadata.PasswordHash = hash

		if cred.ExpiresAt == nil {
			cred.ExpiresAt = certificateNotAfter(raw, opts.Password)
		}
	}

	return nil
}

func (s *CredentialService) sealMunicipal(cred *model.FiscalCredential, payload model.CredentialInput) error {
	if payload.Username == "" || payload.Password == "" {
		return fmt.Errorf("%w: username and password are required", model.ErrIncompletePayload)
	}

	var (
		envelope municipalEnvelope
		err      error
	)
	if envelope.Username, err = s.cipher.Encrypt(payload.Username); err != nil {
		return err
	}
	if envelope.Password, err = s.cipher.Encrypt(payload.Password); err != nil {
		return err
	}

	joined, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal municipal credential: %w", err)
	}

	if cred.EncryptedPayload, err = s.cipher.Encrypt(string(joined)); err != nil {
		return err
	}
	cred.Metadata = model.CredentialMetadata{MaskedUsername: maskUsername(payload.Username)}

	return nil
}

// Retrieve decrypts the company's credential, which must be of expectedType
// and unexpired. Last-used time is stamped on success.
func (s *CredentialService) Retrieve(ctx context.Context, companyID string, expectedType model.CredentialType) (*model.CredentialSecret, error) {
	credErr := func(err error) error {
		return &model.CredentialError{Op: "retrieve", CompanyID: companyID, Type: expectedType, Err: err}
	}

	cred, err := s.store.Get(ctx, companyID)
	if err != nil {
		return nil, credErr(err)
	}
	if cred == nil {
		return nil, credErr(model.ErrCredentialNotFound)
	}
	if cred.Type != expectedType {
		return nil, credErr(fmt.Errorf("%w: stored %s", model.ErrTypeMismatch, cred.Type))
	}

	now := s.now()
	if cred.IsExpiredAt(now) {
		return nil, credErr(model.ErrCredentialExpired)
	}

	secret := &model.CredentialSecret{Type: cred.Type}

	switch cred.Type {
	case model.CredentialTypeCertificate:
		certificate, err := s.cipher.Decrypt(cred.EncryptedPayload)
		if err != nil {
			return nil, credErr(err)
		}
		secret.Certificate = &model.CertificateSecret{Certificate: certificate, Filename: cred.Metadata.Filename}
	case model.CredentialTypeMunicipal:
		municipal, err := s.openMunicipal(cred.EncryptedPayload)
		if err != nil {
			return nil, credErr(err)
		}
		secret.Municipal = municipal
	default:
		return nil, credErr(model.ErrInvalidType)
	}

	if err := s.store.TouchLastUsed(ctx, companyID, now); err != nil {
		return nil, credErr(err)
	}

	return secret, nil
}

func (s *CredentialService) openMunicipal(token string) (*model.MunicipalSecret, error) {
	joined, err := s.cipher.Decrypt(token)
	if err != nil {
		return nil, err
	}

	var envelope municipalEnvelope
	if err := json.Unmarshal([]byte(joined), &envelope); err != nil {
		return nil, fmt.Errorf("%w: municipal envelope: %v", model.ErrDecryption, err)
	}

	username, err := s.cipher.Decrypt(envelope.Username)
	if err != nil {
		return nil, err
	}
	password, err := s.cipher.Decrypt(envelope.Password)
	if err != nil {
		return nil, err
	}

	return &model.MunicipalSecret{Username: username, Password: password}, nil
}

// VerifyCertificatePassword checks password against the stored hash. It
// returns false when no hash was recorded.
func (s *CredentialService) VerifyCertificatePassword(ctx context.Context, companyID, password string) (bool, error) {
	cred, err := s.store.Get(ctx, companyID)
	if err != nil {
		return false, &model.CredentialError{Op: "verify password", CompanyID: companyID, Err: err}
	}
	if cred == nil {
		return false, &model.CredentialError{Op: "verify password", CompanyID: companyID, Err: model.ErrCredentialNotFound}
	}
	if cred.Metadata.PasswordHash == "" {
		return false, nil
	}
	return s.cipher.VerifyPassword(password, cred.Metadata.PasswordHash), nil
}

// Status summarizes the company's credential without side effects.
func (s *CredentialService) Status(ctx context.Context, companyID string) (*model.CredentialStatus, error) {
	cred, err := s.store.Get(ctx, companyID)
	if err != nil {
		return nil, &model.CredentialError{Op: "status", CompanyID: companyID, Err: err}
	}
	if cred == nil {
		return &model.CredentialStatus{}, nil
	}

	status := &model.CredentialStatus{
		Exists:    true,
		Type:      cred.Type,
		ExpiresAt: cred.ExpiresAt,
	}
	if cred.ExpiresAt != nil {
		now := s.now()
		days := model.DaysUntil(*cred.ExpiresAt, now)
		status.DaysUntilExpiration = &days
		status.Expired = cred.IsExpiredAt(now)
	}

	return status, nil
}

// Revoke deletes the credential and resets the company to not_connected.
func (s *CredentialService) Revoke(ctx context.Context, companyID string) error {
	state := model.ConnectionState{
		Status:    model.ConnectionStatusNotConnected,
		Error:     revokedMessage,
		CheckedAt: s.now(),
	}

	if err := s.store.Delete(ctx, companyID, state); err != nil {
		return &model.CredentialError{Op: "revoke", CompanyID: companyID, Err: err}
	}

	slog.Info("fiscal credential revoked", "company_id", companyID)
	return nil
}

// normalizeCertificate returns the certificate as base64 text together with
// its raw bytes. Input that already decodes as base64 is kept as is.
func normalizeCertificate(input []byte) (string, []byte) {
	trimmed := bytes.TrimSpace(input)
	if decoded, err := base64.StdEncoding.DecodeString(string(trimmed)); err == nil && len(decoded) > 0 {
		return string(trimmed), decoded
	}
	return base64.StdEncoding.EncodeToString(input), input
}

// certificateNotAfter reads the leaf certificate's expiry from a PKCS#12
// keystore. Undecodable keystores yield nil.
func certificateNotAfter(pfx []byte, password string) *time.Time {
	_, cert, err := pkcs12.Decode(pfx, password)
	if err != nil {
		slog.Debug("certificate expiry not derived from keystore", "error", err)
		return nil
	}
	notAfter := cert.NotAfter.UTC()
	return &notAfter
}

func maskUsername(username string) string {
	runes := []rune(username)
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return string(runes) + "***"
}
