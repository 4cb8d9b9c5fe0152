package model

import "time"

// GatewayConnectedStatus is the status value the gateway reports for a live connection.
const GatewayConnectedStatus = "conectado"

// GatewayConnection is the gateway's answer to a connection check.
type GatewayConnection struct {
	Status  string
	Message string
	Data    map[string]any
}

// Connected reports whether the gateway considers the company connected.
func (g GatewayConnection) Connected() bool {
	return g.Status == GatewayConnectedStatus
}

// AuthRequirements describes how a municipality authenticates issuers.
type AuthRequirements struct {
	AuthMode            AuthMode
	RequiresCertificate bool
	RequiresLoginSenha  bool
}

// MunicipalityRequirements is the result of a municipality-requirements lookup.
type MunicipalityRequirements struct {
	Supported        bool
	AuthRequirements *AuthRequirements
	Name             string
	Provider         string
}

// ConnectionResult is the outcome of a connection test. Failed tests carry a
// Step naming the remediation the user must perform.
type ConnectionResult struct {
	Success                 bool             `json:"success"`
	Status                  ConnectionStatus `json:"status"`
	Step                    Step             `json:"step,omitempty"`
	Message                 string           `json:"message,omitempty"`
	AuthMethod              AuthMethod       `json:"auth_method,omitempty"`
	UnsupportedMunicipality bool             `json:"unsupported_municipality,omitempty"`
	Warnings                []string         `json:"warnings,omitempty"`
	CheckedAt               time.Time        `json:"checked_at"`
}

// ExpirationCheck is the Lifecycle Monitor's view of a certificate expiry.
type ExpirationCheck struct {
	HasCertificate      bool       `json:"has_certificate"`
	IsExpired           bool       `json:"is_expired"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	DaysUntilExpiration *int       `json:"days_until_expiration,omitempty"`
	NeedsNotification   bool       `json:"needs_notification"`
}

// SweepReport accumulates counters for one certificate expiration sweep.
type SweepReport struct {
	Total             int `json:"total"`
	Expired           int `json:"expired"`
	ExpiringSoon      int `json:"expiring_soon"`
	NotificationsSent int `json:"notifications_sent"`
	Errors            int `json:"errors"`
}
