package ironlicensing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/ironlicensing/ironlicensing-go/internal/machineid"
)

// API endpoints.
const (
	pathValidate   = "/api/v1/validate"
	pathActivate   = "/api/v1/activate"
	pathDeactivate = "/api/v1/deactivate"
	pathTrial      = "/api/v1/trial"
	pathTiers      = "/api/v1/tiers"
	pathCheckout   = "/api/v1/checkout"
)

// Product-auth headers attached to every request.
const (
	headerPublicKey   = "X-Public-Key"
	headerProductSlug = "X-Product-Slug"
)

// transport translates client intents into licensing-service calls and
// normalizes every outcome into a typed result. It never returns a Go error
// for licensing operations: network, HTTP and parse failures all collapse
// into an unsuccessful result, so a flaky network can never crash an
// embedding application.
type transport struct {
	baseURL     string
	publicKey   string
	productSlug string
	debug       bool
	httpClient  *http.Client
	identity    machineid.Identity
	logger      *slog.Logger
}

type validateRequest struct {
	LicenseKey string `json:"licenseKey"`
	MachineID  string `json:"machineId"`
}

type activateRequest struct {
	LicenseKey  string `json:"licenseKey"`
	MachineID   string `json:"machineId"`
	MachineName string `json:"machineName"`
	Platform    string `json:"platform"`
}

type deactivateRequest struct {
	LicenseKey string `json:"licenseKey"`
	MachineID  string `json:"machineId"`
}

type trialRequest struct {
	Email     string `json:"email"`
	MachineID string `json:"machineId"`
}

type checkoutRequest struct {
	TierID string `json:"tierId"`
	Email  string `json:"email"`
}

type tiersResponse struct {
	Tiers []ProductTier `json:"tiers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newTransport(opts Options, identity machineid.Identity) *transport {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.HTTPTimeout}
	}
	return &transport{
		baseURL:     opts.APIBaseURL,
		publicKey:   opts.PublicKey,
		productSlug: opts.ProductSlug,
		debug:       opts.Debug,
		httpClient:  httpClient,
		identity:    identity,
		logger:      opts.logger(),
	}
}

func (t *transport) machineID() string {
	return t.identity.ID
}

func (t *transport) validate(ctx context.Context, licenseKey string) LicenseResult {
	t.logDebug(ctx, "validate", slog.String("license_key", maskLicenseKey(licenseKey)))
	return t.post(ctx, pathValidate, validateRequest{
		LicenseKey: licenseKey,
		MachineID:  t.identity.ID,
	})
}

func (t *transport) activate(ctx context.Context, licenseKey, machineName string) LicenseResult {
	if machineName == "" {
		machineName = hostname()
	}
	t.logDebug(ctx, "activate",
		slog.String("license_key", maskLicenseKey(licenseKey)),
		slog.String("machine_name", machineName),
	)
	return t.post(ctx, pathActivate, activateRequest{
		LicenseKey:  licenseKey,
		MachineID:   t.identity.ID,
		MachineName: machineName,
		Platform:    platform(),
	})
}

// deactivate reports success only on a 2xx response; every failure mode
// yields false without detail.
func (t *transport) deactivate(ctx context.Context, licenseKey string) bool {
	t.logDebug(ctx, "deactivate", slog.String("license_key", maskLicenseKey(licenseKey)))
	resp, err := t.send(ctx, http.MethodPost, pathDeactivate, deactivateRequest{
		LicenseKey: licenseKey,
		MachineID:  t.identity.ID,
	})
	if err != nil {
		t.logger.WarnContext(ctx, "deactivation request failed",
			slog.String("action", "deactivate"),
			slog.String("error", err.Error()),
		)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return is2xx(resp.StatusCode)
}

func (t *transport) startTrial(ctx context.Context, email string) LicenseResult {
	t.logDebug(ctx, "start_trial", slog.String("email", maskEmail(email)))
	return t.post(ctx, pathTrial, trialRequest{
		Email:     email,
		MachineID: t.identity.ID,
	})
}

// getTiers returns the purchasable tiers, or an empty slice on any failure.
func (t *transport) getTiers(ctx context.Context) []ProductTier {
	t.logDebug(ctx, "get_tiers")
	resp, err := t.send(ctx, http.MethodGet, pathTiers, nil)
	if err != nil {
		t.logger.WarnContext(ctx, "tiers request failed",
			slog.String("action", "get_tiers"),
			slog.String("error", err.Error()),
		)
		return []ProductTier{}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil || !is2xx(resp.StatusCode) {
		return []ProductTier{}
	}
	var parsed tiersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.logger.WarnContext(ctx, "tiers response not parseable",
			slog.String("action", "get_tiers"),
			slog.String("error", err.Error()),
		)
		return []ProductTier{}
	}
	if parsed.Tiers == nil {
		return []ProductTier{}
	}
	return parsed.Tiers
}

func (t *transport) startCheckout(ctx context.Context, tierID, email string) CheckoutResult {
	t.logDebug(ctx, "start_checkout", slog.String("tier_id", tierID))
	resp, err := t.send(ctx, http.MethodPost, pathCheckout, checkoutRequest{
		TierID: tierID,
		Email:  email,
	})
	if err != nil {
		return CheckoutResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return CheckoutResult{Success: false, Error: readErr.Error()}
	}

	if !is2xx(resp.StatusCode) {
		return CheckoutResult{Success: false, Error: errorMessage(body, "Checkout failed")}
	}

	var result CheckoutResult
	if err := json.Unmarshal(body, &result); err != nil {
		return CheckoutResult{Success: false, Error: err.Error()}
	}
	result.Success = true
	return result
}

// post runs a state-changing licensing call and applies the uniform
// response policy: transport failure, non-2xx and unparseable bodies all
// become failure results carrying the most specific message available.
func (t *transport) post(ctx context.Context, path string, payload any) LicenseResult {
	start := time.Now()
	resp, err := t.send(ctx, http.MethodPost, path, payload)
	if err != nil {
		t.logger.WarnContext(ctx, "licensing request failed",
			slog.String("path", path),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		result := Failure(err.Error())
		result.transportFailure = true
		return result
	}
	defer resp.Body.Close()
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		result := Failure(readErr.Error())
		result.transportFailure = true
		return result
	}

	if !is2xx(resp.StatusCode) {
		msg := errorMessage(body, "Request failed")
		t.logDebug(ctx, "licensing request rejected",
			slog.String("path", path),
			slog.Int("status_code", resp.StatusCode),
		)
		return Failure(msg)
	}

	var result LicenseResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.logger.WarnContext(ctx, "licensing response not parseable",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return Failure(err.Error())
	}
	return result
}

// send builds and executes one request with the product-auth headers.
func (t *transport) send(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerPublicKey, t.publicKey)
	req.Header.Set(headerProductSlug, t.productSlug)

	return t.httpClient.Do(req)
}

func (t *transport) logDebug(ctx context.Context, action string, attrs ...slog.Attr) {
	if !t.debug {
		return
	}
	all := append([]slog.Attr{slog.String("action", action)}, attrs...)
	t.logger.LogAttrs(ctx, slog.LevelDebug, "licensing call", all...)
}

// errorMessage extracts a server-provided {error} message, or falls back.
func errorMessage(body []byte, fallback string) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return fallback
}

func is2xx(code int) bool {
	return code >= 200 && code < 300
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}

func platform() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "darwin":
		return "macos"
	case "linux":
		return "linux"
	default:
		return "unknown"
	}
}
