package validation

import (
	"encoding/base64"

	validation "github.com/jellydator/validation"
)

// Base64URL validates that a string is unpadded base64url data, the encoding used for
// plain secure tokens.
var Base64URL = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_base64url_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if _, err := base64.RawURLEncoding.DecodeString(s); err != nil {
		return validation.NewError("validation_base64url", "must be valid base64url-encoded data")
	}
	return nil
})
