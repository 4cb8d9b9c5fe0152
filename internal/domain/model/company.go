package model

import "time"

// ConnectionState is the persisted status triad of a company's fiscal connection.
// Every write stamps CheckedAt.
type ConnectionState struct {
	Status    ConnectionStatus
	Error     string // Empty means NULL.
	CheckedAt time.Time
}

// Company is the subset of the externally owned company record this subsystem
// reads and writes.
type Company struct {
	ID                                      string
	UserID                                  string
	Name                                    string
	GatewayRegistrationID                   string
	CertificateUploadedToGateway            bool
	MunicipalCredentialsConfiguredAtGateway bool
	MunicipalityCode                        *string
	Connection                              ConnectionState
	CreatedAt                               time.Time
	UpdatedAt                               time.Time
}

// IsRegisteredWithGateway reports whether the company has an external
// registration id at the gateway.
func (c Company) IsRegisteredWithGateway() bool {
	return c.GatewayRegistrationID != ""
}

// HasGatewayAuth reports whether any local credential has been pushed to the gateway.
func (c Company) HasGatewayAuth() bool {
	return c.CertificateUploadedToGateway || c.MunicipalCredentialsConfiguredAtGateway
}

// FiscalIdentity is the aggregate of a company and its (optional) fiscal
// credential. Stores persist both halves in a single transaction.
type FiscalIdentity struct {
	Company    Company
	Credential *FiscalCredential
}
