package ironlicensing

import (
	"context"
	"sync"
)

// The default client is a process-wide convenience for embedders that do
// not want to thread a *Client through their application. It is set at
// most once; constructing and passing a Client explicitly remains the
// preferred wiring.
var (
	defaultMu     sync.RWMutex
	defaultClient *Client
)

// Init initializes the default client with the given credentials. A second
// call fails with ErrAlreadyInitialized.
func Init(publicKey, productSlug string) error {
	return InitWithOptions(NewOptions(publicKey, productSlug))
}

// InitWithOptions initializes the default client with custom options.
func InitWithOptions(opts Options) error {
	client, err := New(opts)
	if err != nil {
		return err
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		return ErrAlreadyInitialized
	}
	defaultClient = client
	return nil
}

// DefaultClient returns the client set by Init, or ErrNotInitialized.
func DefaultClient() (*Client, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultClient == nil {
		return nil, ErrNotInitialized
	}
	return defaultClient, nil
}

// Validate validates a license key using the default client.
func Validate(ctx context.Context, licenseKey string) (LicenseResult, error) {
	c, err := DefaultClient()
	if err != nil {
		return LicenseResult{}, err
	}
	return c.Validate(ctx, licenseKey), nil
}

// Activate activates a license key using the default client.
func Activate(ctx context.Context, licenseKey string) (LicenseResult, error) {
	c, err := DefaultClient()
	if err != nil {
		return LicenseResult{}, err
	}
	return c.Activate(ctx, licenseKey), nil
}

// ActivateWithName activates a license key under a custom machine name
// using the default client.
func ActivateWithName(ctx context.Context, licenseKey, machineName string) (LicenseResult, error) {
	c, err := DefaultClient()
	if err != nil {
		return LicenseResult{}, err
	}
	return c.ActivateWithName(ctx, licenseKey, machineName), nil
}

// Deactivate releases the current license using the default client.
func Deactivate(ctx context.Context) (bool, error) {
	c, err := DefaultClient()
	if err != nil {
		return false, err
	}
	return c.Deactivate(ctx), nil
}

// StartTrial starts a trial using the default client.
func StartTrial(ctx context.Context, email string) (LicenseResult, error) {
	c, err := DefaultClient()
	if err != nil {
		return LicenseResult{}, err
	}
	return c.StartTrial(ctx, email), nil
}

// HasFeature checks a feature using the default client.
func HasFeature(featureKey string) (bool, error) {
	c, err := DefaultClient()
	if err != nil {
		return false, err
	}
	return c.HasFeature(featureKey), nil
}

// RequireFeature requires a feature using the default client.
func RequireFeature(featureKey string) error {
	c, err := DefaultClient()
	if err != nil {
		return err
	}
	return c.RequireFeature(featureKey)
}

// GetFeature looks up a feature using the default client.
func GetFeature(featureKey string) (Feature, bool, error) {
	c, err := DefaultClient()
	if err != nil {
		return Feature{}, false, err
	}
	f, ok := c.GetFeature(featureKey)
	return f, ok, nil
}

// CurrentLicense returns the current license snapshot from the default
// client, or nil when unlicensed.
func CurrentLicense() (*License, error) {
	c, err := DefaultClient()
	if err != nil {
		return nil, err
	}
	return c.License(), nil
}

// Status returns the current license status from the default client.
func Status() (LicenseStatus, error) {
	c, err := DefaultClient()
	if err != nil {
		return StatusNotActivated, err
	}
	return c.Status(), nil
}

// IsLicensed reports whether the default client holds a valid or trial
// license.
func IsLicensed() (bool, error) {
	c, err := DefaultClient()
	if err != nil {
		return false, err
	}
	return c.IsLicensed(), nil
}

// IsTrial reports whether the default client runs in trial mode.
func IsTrial() (bool, error) {
	c, err := DefaultClient()
	if err != nil {
		return false, err
	}
	return c.IsTrial(), nil
}

// GetTiers returns the purchasable tiers using the default client.
func GetTiers(ctx context.Context) ([]ProductTier, error) {
	c, err := DefaultClient()
	if err != nil {
		return nil, err
	}
	return c.GetTiers(ctx), nil
}

// StartPurchase opens a checkout session using the default client.
func StartPurchase(ctx context.Context, tierID, email string) (CheckoutResult, error) {
	c, err := DefaultClient()
	if err != nil {
		return CheckoutResult{}, err
	}
	return c.StartPurchase(ctx, tierID, email), nil
}

// MachineID returns the activation machine identifier from the default
// client.
func MachineID() (string, error) {
	c, err := DefaultClient()
	if err != nil {
		return "", err
	}
	return c.MachineID(), nil
}
