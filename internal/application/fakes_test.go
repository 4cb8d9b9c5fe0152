package application

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/fiscalkeeper/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// --- In-memory port implementations ---

type fakeCompanyStore struct {
	companies map[string]model.Company
	updates   []model.ConnectionState
	getErr    error
	updateErr error
	pingErr   error
}

func newFakeCompanyStore() *fakeCompanyStore {
	return &fakeCompanyStore{companies: make(map[string]model.Company)}
}

func (f *fakeCompanyStore) Get(_ context.Context, id string) (*model.Company, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.companies[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCompanyStore) Upsert(_ context.Context, c model.Company) error {
	f.companies[c.ID] = c
	return nil
}

func (f *fakeCompanyStore) UpdateConnectionState(_ context.Context, id string, state model.ConnectionState) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	c, ok := f.companies[id]
	if !ok {
		return model.ErrCompanyNotFound
	}
	c.Connection = state
	f.companies[id] = c
	f.updates = append(f.updates, state)
	return nil
}

func (f *fakeCompanyStore) Ping(_ context.Context) error {
	return f.pingErr
}

type fakeCredentialStore struct {
	companies *fakeCompanyStore
	creds     map[string]model.FiscalCredential
	touched   map[string]time.Time
	nextID    int64
	getErr    error
	listErr   error
}

func newFakeCredentialStore(companies *fakeCompanyStore) *fakeCredentialStore {
	return &fakeCredentialStore{
		companies: companies,
		creds:     make(map[string]model.FiscalCredential),
		touched:   make(map[string]time.Time),
	}
}

func (f *fakeCredentialStore) Get(_ context.Context, companyID string) (*model.FiscalCredential, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.creds[companyID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCredentialStore) Save(ctx context.Context, identity model.FiscalIdentity) error {
	if err := f.companies.UpdateConnectionState(ctx, identity.Company.ID, identity.Company.Connection); err != nil {
		return err
	}
	cred := *identity.Credential
	if existing, ok := f.creds[cred.CompanyID]; ok {
		cred.ID = existing.ID
		cred.CreatedAt = existing.CreatedAt
	} else {
		f.nextID++
		cred.ID = f.nextID
		cred.CreatedAt = identity.Company.Connection.CheckedAt
	}
	cred.UpdatedAt = identity.Company.Connection.CheckedAt
	f.creds[cred.CompanyID] = cred
	return nil
}

func (f *fakeCredentialStore) Delete(ctx context.Context, companyID string, state model.ConnectionState) error {
	if _, ok := f.creds[companyID]; !ok {
		return model.ErrCredentialNotFound
	}
	delete(f.creds, companyID)
	return f.companies.UpdateConnectionState(ctx, companyID, state)
}

func (f *fakeCredentialStore) TouchLastUsed(_ context.Context, companyID string, at time.Time) error {
	f.touched[companyID] = at
	return nil
}

func (f *fakeCredentialStore) ListCertificatesWithExpiry(_ context.Context) ([]model.FiscalCredential, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.FiscalCredential
	for _, c := range f.creds {
		if c.Type == model.CredentialTypeCertificate && c.ExpiresAt != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeNotificationStore struct {
	records   []model.Notification
	existsErr error
}

func (f *fakeNotificationStore) Record(_ context.Context, n model.Notification) error {
	f.records = append(f.records, n)
	return nil
}

func (f *fakeNotificationStore) ExistsSince(_ context.Context, userID, companyID, title string, since time.Time) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, n := range f.records {
		if n.UserID == userID && n.CompanyID == companyID && strings.Contains(n.Title, title) && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeGateway struct {
	conn  *model.GatewayConnection
	err   error
	calls []string
}

func (f *fakeGateway) CheckConnection(_ context.Context, registrationID string) (*model.GatewayConnection, error) {
	f.calls = append(f.calls, registrationID)
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

type fakeDirectory struct {
	req   *model.MunicipalityRequirements
	err   error
	calls int
}

func (f *fakeDirectory) GetRequirements(_ context.Context, _ string) (*model.MunicipalityRequirements, error) {
	f.calls++
	return f.req, f.err
}

// --- Fixture wiring the services over the fakes with a controllable clock ---

type fixture struct {
	now time.Time

	companies *fakeCompanyStore
	creds     *fakeCredentialStore
	notes     *fakeNotificationStore
	notifier  *fakeNotifier
	gateway   *fakeGateway
	directory *fakeDirectory

	credentials *CredentialService
	alerts      *AlertService
	connections *ConnectionService
	monitor     *CertificateMonitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cipher, err := aesgcm.New(bytes.Repeat([]byte{0x2a}, aesgcm.KeySize), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	f := &fixture{now: time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.companies = newFakeCompanyStore()
	f.creds = newFakeCredentialStore(f.companies)
	f.notes = &fakeNotificationStore{}
	f.notifier = &fakeNotifier{}
	f.gateway = &fakeGateway{conn: &model.GatewayConnection{Status: model.GatewayConnectedStatus}}
	f.directory = &fakeDirectory{req: &model.MunicipalityRequirements{
		Supported:        true,
		Name:             "Sao Paulo",
		AuthRequirements: &model.AuthRequirements{AuthMode: model.AuthModeCertificateOnly, RequiresCertificate: true},
	}}

	f.credentials = NewCredentialService(f.creds, f.companies, cipher)
	f.credentials.now = clock
	f.alerts = NewAlertService(f.notes, f.notifier, nil)
	f.alerts.now = clock
	f.connections = NewConnectionService(f.companies, f.creds, f.gateway, f.directory, f.alerts, nil)
	f.connections.now = clock
	f.monitor = NewCertificateMonitor(f.credentials, f.creds, f.companies, f.connections, f.alerts, nil, 9)
	f.monitor.now = clock

	return f
}

// addCompany registers a company that is fully set up for certificate auth.
func (f *fixture) addCompany(id string, mutate ...func(*model.Company)) model.Company {
	code := "3550308"
	c := model.Company{
		ID:                           id,
		UserID:                       "owner-" + id,
		Name:                         "Acme " + id,
		GatewayRegistrationID:        "gw-" + id,
		CertificateUploadedToGateway: true,
		MunicipalityCode:             &code,
	}
	for _, m := range mutate {
		m(&c)
	}
	f.companies.companies[id] = c
	return c
}

// addCertificate stores a certificate credential expiring at expiresAt.
func (f *fixture) addCertificate(t *testing.T, companyID string, expiresAt *time.Time) {
	t.Helper()

	_, err := f.credentials.Store(context.Background(), companyID, model.CredentialTypeCertificate,
		model.CredentialInput{Certificate: []byte("keystore-bytes")},
		model.StoreOptions{Filename: "cert.pfx", ExpiresAt: expiresAt},
	)
	require.NoError(t, err)
}

func (f *fixture) company(id string) model.Company {
	return f.companies.companies[id]
}

func daysFrom(now time.Time, days int) *time.Time {
	t := now.Add(time.Duration(days) * 24 * time.Hour)
	return &t
}
