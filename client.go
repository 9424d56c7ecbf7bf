package ironlicensing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ironlicensing/ironlicensing-go/internal/machineid"
)

// Client is the license state machine. It owns the current license
// snapshot, mediates every state transition against the licensing service,
// and answers entitlement queries from the local snapshot.
//
// A Client is safe for concurrent use. Entitlement queries take shared
// access and never block each other; state-changing operations perform
// their network call outside the lock and take exclusive access only for
// the in-memory swap, so a slow network never blocks feature checks
// against the previous state. Competing state-changing calls are not
// serialized: the last writer wins.
type Client struct {
	opts      Options
	transport *transport
	cache     *resultCache
	logger    *slog.Logger
	metrics   *Metrics

	mu      sync.RWMutex
	license *License
	key     string
}

// New creates a Client from the given options. It fails fast on missing
// credentials and never contacts the network.
func New(opts Options) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := opts.logger()
	idPath := opts.MachineIDPath
	if idPath == "" {
		idPath = machineid.DefaultPath()
	}
	identity := machineid.ResolveAt(idPath, logger)

	c := &Client{
		opts:      opts,
		transport: newTransport(opts, identity),
		logger:    logger,
	}
	if opts.EnableOfflineCache {
		c.cache = newResultCache(
			opts.CacheValidationInterval,
			time.Duration(opts.OfflineGraceDays)*24*time.Hour,
		)
	}

	if opts.Debug {
		logger.Debug("client initialized",
			slog.String("api_base_url", opts.APIBaseURL),
			slog.String("product_slug", opts.ProductSlug),
			slog.Bool("machine_id_persisted", identity.Persisted),
			slog.Bool("offline_cache", opts.EnableOfflineCache),
		)
	}
	return c, nil
}

// NewWithCredentials creates a Client with default options.
func NewWithCredentials(publicKey, productSlug string) (*Client, error) {
	return New(NewOptions(publicKey, productSlug))
}

// SetMetrics installs an OpenTelemetry metric bundle. Call before the
// client is shared across goroutines.
func (c *Client) SetMetrics(m *Metrics) {
	c.metrics = m
}

// Validate checks a license key with the service and, on success, makes
// the returned license the current snapshot. With the offline cache
// enabled, a fresh previous success is reused without a network call, and
// an unreachable service falls back to the last success within the grace
// window; such results carry Cached=true.
func (c *Client) Validate(ctx context.Context, licenseKey string) LicenseResult {
	ctx, span := startSpan(ctx, "validate")
	start := time.Now()

	if c.cache != nil {
		if cached, ok := c.cache.fresh(licenseKey); ok {
			c.metrics.recordCacheLookup(ctx, true)
			c.applyResult(cached, licenseKey)
			c.metrics.recordOperation(ctx, span, "validate", start, cached.Valid, true)
			return cached
		}
		c.metrics.recordCacheLookup(ctx, false)
	}

	result := c.transport.validate(ctx, licenseKey)

	if c.cache != nil && !result.Valid && result.transportFailure {
		if cached, ok := c.cache.fallback(licenseKey); ok {
			c.logger.WarnContext(ctx, "service unreachable, serving cached validation",
				slog.String("action", "validate"),
				slog.String("license_key", maskLicenseKey(licenseKey)),
				slog.String("network_error", result.Error),
			)
			c.applyResult(cached, licenseKey)
			c.metrics.recordOperation(ctx, span, "validate", start, cached.Valid, true)
			return cached
		}
	}

	c.finish(ctx, span, "validate", start, result, licenseKey)
	return result
}

// Activate binds a license key to this machine, using the local hostname
// as the machine name.
func (c *Client) Activate(ctx context.Context, licenseKey string) LicenseResult {
	return c.ActivateWithName(ctx, licenseKey, "")
}

// ActivateWithName binds a license key to this machine under a custom
// machine name. An empty name falls back to the local hostname.
func (c *Client) ActivateWithName(ctx context.Context, licenseKey, machineName string) LicenseResult {
	ctx, span := startSpan(ctx, "activate")
	start := time.Now()

	result := c.transport.activate(ctx, licenseKey, machineName)
	c.finish(ctx, span, "activate", start, result, licenseKey)
	return result
}

// Deactivate releases the current license from this machine. Returns true
// only when the service confirmed the deactivation; in that case the local
// snapshot is cleared. Without a held license key it returns false without
// a network call.
func (c *Client) Deactivate(ctx context.Context) bool {
	ctx, span := startSpan(ctx, "deactivate")
	start := time.Now()

	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()

	if key == "" {
		c.metrics.recordOperation(ctx, span, "deactivate", start, false, false)
		return false
	}

	ok := c.transport.deactivate(ctx, key)
	if ok {
		c.mu.Lock()
		c.license = nil
		c.key = ""
		c.mu.Unlock()
		if c.cache != nil {
			c.cache.evict(key)
		}
		c.logger.InfoContext(ctx, "license deactivated",
			slog.String("action", "deactivate"),
			slog.String("license_key", maskLicenseKey(key)),
		)
	}
	c.metrics.recordOperation(ctx, span, "deactivate", start, ok, false)
	return ok
}

// StartTrial requests a trial license for the given email and, on success,
// makes it the current snapshot.
func (c *Client) StartTrial(ctx context.Context, email string) LicenseResult {
	ctx, span := startSpan(ctx, "start_trial")
	start := time.Now()

	result := c.transport.startTrial(ctx, email)
	key := ""
	if result.License != nil {
		key = result.License.Key
	}
	c.finish(ctx, span, "start_trial", start, result, key)
	return result
}

// HasFeature reports whether the current license carries the feature in an
// enabled state. False whenever no license is held.
func (c *Client) HasFeature(featureKey string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.license != nil && c.license.HasFeature(featureKey)
}

// RequireFeature returns a *FeatureRequiredError when HasFeature is false.
func (c *Client) RequireFeature(featureKey string) error {
	if !c.HasFeature(featureKey) {
		return &FeatureRequiredError{Key: featureKey}
	}
	return nil
}

// GetFeature returns the first feature with the given key regardless of
// its enabled state.
func (c *Client) GetFeature(featureKey string) (Feature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.license == nil {
		return Feature{}, false
	}
	return c.license.GetFeature(featureKey)
}

// License returns a snapshot copy of the current license, or nil when
// unlicensed.
func (c *Client) License() *License {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.license.clone()
}

// Status returns the current license status, or StatusNotActivated when no
// license is held.
func (c *Client) Status() LicenseStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.license == nil {
		return StatusNotActivated
	}
	return c.license.Status
}

// IsLicensed reports whether the current status is valid or trial.
func (c *Client) IsLicensed() bool {
	status := c.Status()
	return status == StatusValid || status == StatusTrial
}

// IsTrial reports whether the client runs in trial mode. The service may
// represent trials through the status or the license type; either signal
// suffices.
func (c *Client) IsTrial() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.license == nil {
		return false
	}
	return c.license.Status == StatusTrial || c.license.Type == TypeTrial
}

// GetTiers returns the purchasable product tiers. Empty on any failure.
func (c *Client) GetTiers(ctx context.Context) []ProductTier {
	return c.transport.getTiers(ctx)
}

// StartPurchase opens a checkout session for the given tier.
func (c *Client) StartPurchase(ctx context.Context, tierID, email string) CheckoutResult {
	return c.transport.startCheckout(ctx, tierID, email)
}

// MachineID returns the identifier used to bind activations to this
// machine. Stable across calls, and across restarts when the identity file
// is readable and writable.
func (c *Client) MachineID() string {
	return c.transport.machineID()
}

// MachineIDPersisted reports whether the machine identifier survives a
// process restart. False indicates reduced activation-tracking fidelity;
// see Options.MachineIDPath.
func (c *Client) MachineIDPersisted() bool {
	return c.transport.identity.Persisted
}

// CacheStats reports offline-cache counters, or nil when the cache is
// disabled.
func (c *Client) CacheStats() map[string]any {
	if c.cache == nil {
		return nil
	}
	return c.cache.stats()
}

// finish applies the outcome of a validate/activate/trial call: a valid
// result with a license payload replaces the snapshot and feeds the cache;
// a server rejection evicts the cache entry; everything else leaves the
// store unchanged.
func (c *Client) finish(ctx context.Context, span trace.Span, operation string, start time.Time, result LicenseResult, licenseKey string) {
	switch {
	case result.Valid && result.License != nil:
		c.applyResult(result, licenseKey)
		if c.cache != nil && licenseKey != "" {
			c.cache.store(licenseKey, result)
		}
		c.logger.InfoContext(ctx, "license operation succeeded",
			slog.String("action", operation),
			slog.String("license_key", maskLicenseKey(licenseKey)),
			slog.String("status", string(result.License.Status)),
		)
	case !result.Valid && !result.transportFailure:
		// Authoritative rejection from the service.
		if c.cache != nil && licenseKey != "" {
			c.cache.evict(licenseKey)
		}
		c.logger.InfoContext(ctx, "license operation rejected",
			slog.String("action", operation),
			slog.String("license_key", maskLicenseKey(licenseKey)),
			slog.String("error", result.Error),
		)
	}
	c.metrics.recordOperation(ctx, span, operation, start, result.Valid, result.Cached)
}

// applyResult swaps the snapshot when the result is a success carrying a
// license. A valid result without a payload must not update the store.
func (c *Client) applyResult(result LicenseResult, licenseKey string) {
	if !result.Valid || result.License == nil {
		return
	}
	license := result.License.clone()
	c.mu.Lock()
	c.license = license
	c.key = licenseKey
	c.mu.Unlock()
}
