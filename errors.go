package ironlicensing

import (
	"errors"
	"fmt"
)

// Configuration errors, raised only at construction time. A client is never
// built with missing credentials, so call-time operations do not re-check them.
var (
	ErrPublicKeyRequired   = errors.New("public key is required")
	ErrProductSlugRequired = errors.New("product slug is required")
)

// Default-client errors.
var (
	ErrNotInitialized     = errors.New("ironlicensing client not initialized")
	ErrAlreadyInitialized = errors.New("ironlicensing client already initialized")
)

// FeatureRequiredError is returned by RequireFeature when the current
// license does not carry the named feature in an enabled state.
type FeatureRequiredError struct {
	Key string
}

func (e *FeatureRequiredError) Error() string {
	return fmt.Sprintf("feature %q requires a valid license", e.Key)
}

// APIError carries a human-readable message sourced from the licensing
// service or from a transport failure. Licensing operations convert these
// into LicenseResult values rather than returning them; the type exists for
// callers that want to wrap result errors programmatically.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "api error: " + e.Message
}
