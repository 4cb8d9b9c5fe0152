package model

// ConnectionStatus summarizes whether a company may issue tax documents.
// The zero value means the connection has never been checked.
type ConnectionStatus string

const (
	ConnectionStatusUnset        ConnectionStatus = ""
	ConnectionStatusNotConnected ConnectionStatus = "not_connected"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusFailed       ConnectionStatus = "failed"
	ConnectionStatusExpired      ConnectionStatus = "expired"
)

// CredentialType identifies the authentication material stored for a company.
type CredentialType string

const (
	CredentialTypeCertificate CredentialType = "certificate"
	CredentialTypeMunicipal   CredentialType = "municipal_credentials"
)

// Valid reports whether t is one of the supported credential types.
func (t CredentialType) Valid() bool {
	return t == CredentialTypeCertificate || t == CredentialTypeMunicipal
}

// Step is a remediation hint returned alongside a failed connection test,
// naming the next action the user must take.
type Step string

const (
	StepNone                          Step = ""
	StepRegisterCompany               Step = "register_company"
	StepConfigureAuth                 Step = "configure_auth"
	StepRenewCertificate              Step = "renew_certificate"
	StepUploadCertificate             Step = "upload_certificate"
	StepConfigureMunicipalCredentials Step = "configure_municipal_credentials"
	StepCheckConnection               Step = "check_connection"
)

// AuthMethod labels the authentication method used for a successful connection.
type AuthMethod string

const (
	AuthMethodCertificate       AuthMethod = "certificate"
	AuthMethodPortalCredentials AuthMethod = "portal_credentials"
)

// AuthMode is the authentication requirement a municipality imposes.
type AuthMode string

const (
	AuthModeCertificateOnly AuthMode = "certificate_only"
	AuthModeMunicipalOnly   AuthMode = "municipal_only"
	AuthModeBoth            AuthMode = "both"
)

// NotificationCategory classifies alerts raised by this subsystem.
type NotificationCategory string

const (
	NotificationCertificateExpired  NotificationCategory = "certificate_expired"
	NotificationCertificateExpiring NotificationCategory = "certificate_expiring"
	NotificationCredentialIssue     NotificationCategory = "credential_issue"
)
