package ironlicensing

import "encoding/json"

// LicenseStatus is the state of a license as reported by the licensing
// service. Unrecognized values decode to StatusUnknown so that a newer
// server never breaks an older SDK.
type LicenseStatus string

const (
	StatusValid        LicenseStatus = "valid"
	StatusExpired      LicenseStatus = "expired"
	StatusSuspended    LicenseStatus = "suspended"
	StatusRevoked      LicenseStatus = "revoked"
	StatusInvalid      LicenseStatus = "invalid"
	StatusTrial        LicenseStatus = "trial"
	StatusTrialExpired LicenseStatus = "trial_expired"
	StatusNotActivated LicenseStatus = "not_activated"
	StatusUnknown      LicenseStatus = "unknown"
)

// knownStatuses is the closed set of statuses the SDK understands.
var knownStatuses = map[LicenseStatus]bool{
	StatusValid:        true,
	StatusExpired:      true,
	StatusSuspended:    true,
	StatusRevoked:      true,
	StatusInvalid:      true,
	StatusTrial:        true,
	StatusTrialExpired: true,
	StatusNotActivated: true,
}

// UnmarshalJSON collapses any value outside the closed enum to StatusUnknown.
func (s *LicenseStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := LicenseStatus(raw)
	if !knownStatuses[status] {
		status = StatusUnknown
	}
	*s = status
	return nil
}

// LicenseType describes how a license was granted.
type LicenseType string

const (
	TypePerpetual    LicenseType = "perpetual"
	TypeSubscription LicenseType = "subscription"
	TypeTrial        LicenseType = "trial"
)

// Feature is a named capability flag attached to a license.
type Feature struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Enabled     bool           `json:"enabled"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// License is the authoritative entitlement record for one grant, as last
// fetched from the licensing service. It is never mutated field-by-field;
// the client replaces its snapshot wholesale on each successful call.
type License struct {
	ID                 string         `json:"id"`
	Key                string         `json:"key"`
	Status             LicenseStatus  `json:"status"`
	Type               LicenseType    `json:"type"`
	Email              string         `json:"email,omitempty"`
	Name               string         `json:"name,omitempty"`
	Company            string         `json:"company,omitempty"`
	Features           []Feature      `json:"features"`
	MaxActivations     int            `json:"maxActivations"`
	CurrentActivations int            `json:"currentActivations"`
	ExpiresAt          string         `json:"expiresAt,omitempty"`
	CreatedAt          string         `json:"createdAt,omitempty"`
	LastValidatedAt    string         `json:"lastValidatedAt,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// HasFeature reports whether the license carries an enabled feature with the
// given key.
func (l *License) HasFeature(key string) bool {
	for _, f := range l.Features {
		if f.Key == key && f.Enabled {
			return true
		}
	}
	return false
}

// GetFeature returns the first feature with the given key regardless of its
// enabled state.
func (l *License) GetFeature(key string) (Feature, bool) {
	for _, f := range l.Features {
		if f.Key == key {
			return f, true
		}
	}
	return Feature{}, false
}

// clone returns a deep copy so that snapshots handed to callers are
// isolated from later store swaps.
func (l *License) clone() *License {
	if l == nil {
		return nil
	}
	dup := *l
	if l.Features != nil {
		dup.Features = make([]Feature, len(l.Features))
		copy(dup.Features, l.Features)
		for i, f := range l.Features {
			dup.Features[i].Metadata = cloneMetadata(f.Metadata)
		}
	}
	dup.Metadata = cloneMetadata(l.Metadata)
	return &dup
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	dup := make(map[string]any, len(m))
	for k, v := range m {
		dup[k] = v
	}
	return dup
}

// Activation records one machine bound to a license. Informational only.
type Activation struct {
	ID          string `json:"id"`
	MachineID   string `json:"machineId"`
	MachineName string `json:"machineName,omitempty"`
	Platform    string `json:"platform,omitempty"`
	ActivatedAt string `json:"activatedAt,omitempty"`
	LastSeenAt  string `json:"lastSeenAt,omitempty"`
}

// LicenseResult is the envelope returned by validate, activate and trial
// operations. Cached is true only when the result was served from the
// offline cache rather than a live response.
type LicenseResult struct {
	Valid       bool          `json:"valid"`
	License     *License      `json:"license,omitempty"`
	Activations []Activation  `json:"activations,omitempty"`
	Error       string        `json:"error,omitempty"`
	Cached      bool          `json:"cached"`

	// transportFailure marks results synthesized from a network-level
	// failure, as opposed to a server rejection. Drives the offline-cache
	// fallback; never serialized.
	transportFailure bool
}

// Failure builds a LicenseResult carrying an error message.
func Failure(msg string) LicenseResult {
	return LicenseResult{Valid: false, Error: msg}
}

// CheckoutResult describes the outcome of starting a checkout session.
type CheckoutResult struct {
	Success     bool   `json:"success"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ProductTier is a purchasable tier of the product.
type ProductTier struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	BillingPeriod string    `json:"billingPeriod,omitempty"`
	Features      []Feature `json:"features"`
}
