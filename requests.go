package gimbal

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance.
var validate = validator.New()

// MirrorRequest describes a user-created mirror to register.
type MirrorRequest struct {
	Name        string `json:"name" validate:"required"`
	URL         string `json:"url" validate:"required,startswith=http"`
	Description string `json:"description,omitempty"`
}

// Validate checks the request before any network call. An empty name or a
// URL not starting with http/https is a ValidationError surfaced inline.
func (r MirrorRequest) Validate() error {
	return checkStruct(r)
}

// Normalized returns the request with its URL stripped of trailing slashes,
// matching how the remote store canonicalizes mirror URLs.
func (r MirrorRequest) Normalized() MirrorRequest {
	r.URL = strings.TrimRight(r.URL, "/")
	return r
}

// LoginRequest carries an access token for login or validation.
type LoginRequest struct {
	Token string `json:"token" validate:"required"`
}

// Validate rejects empty tokens before any network call.
func (r LoginRequest) Validate() error {
	return checkStruct(r)
}

// checkStruct runs validator tags and converts the first failure into a
// ValidationError.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		reason := "invalid value"
		switch fe.Tag() {
		case "required":
			reason = "must not be empty"
		case "startswith":
			reason = "must start with " + fe.Param()
		}
		return &ValidationError{Field: strings.ToLower(fe.Field()), Reason: reason}
	}
	return &ValidationError{Reason: err.Error()}
}
