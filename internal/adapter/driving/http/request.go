package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies; certificates are sent base64 encoded.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PutCompanyRequest is the request body for PUT /api/v1/companies/{id}.
type PutCompanyRequest struct {
	UserID                                  string  `json:"user_id" validate:"required"`
	Name                                    string  `json:"name" validate:"required,max=200"`
	GatewayRegistrationID                   string  `json:"gateway_registration_id" validate:"max=100"`
	CertificateUploadedToGateway            bool    `json:"certificate_uploaded_to_gateway"`
	MunicipalCredentialsConfiguredAtGateway bool    `json:"municipal_credentials_configured_at_gateway"`
	MunicipalityCode                        *string `json:"municipality_code" validate:"omitempty,numeric,len=7"`
}

// StoreCredentialRequest is the request body for PUT .../credential.
// Certificate is the PKCS#12 keystore, base64 encoded.
type StoreCredentialRequest struct {
	Type                string     `json:"type" validate:"required,oneof=certificate municipal_credentials"`
	Certificate         string     `json:"certificate" validate:"required_if=Type certificate"`
	Filename            string     `json:"filename" validate:"max=255"`
	CertificatePassword string     `json:"certificate_password"`
	ExpiresAt           *time.Time `json:"expires_at"`
	Username            string     `json:"username" validate:"required_if=Type municipal_credentials"`
	Password            string     `json:"password" validate:"required_if=Type municipal_credentials"`
}

// VerifyPasswordRequest is the request body for POST .../credential/verify-password.
type VerifyPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// decodeRequest decodes and validates a JSON body into dst. It writes a 400
// response and returns false on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}

	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
