package ironlicensing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// newTestClient builds a client against the given handler with a
// throwaway machine identity.
func newTestClient(t *testing.T, handler http.Handler, mutate func(*Options)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts := NewOptions("pk_test_key", "test-product")
	opts.APIBaseURL = server.URL
	opts.MachineIDPath = filepath.Join(t.TempDir(), "machine_id")
	if mutate != nil {
		mutate(&opts)
	}

	client, err := New(opts)
	require.NoError(t, err)
	return client
}

// licensingHandler is a minimal mock of the licensing service: one known
// key, trials on demand.
func licensingHandler(knownKey string) http.Handler {
	r := chi.NewRouter()
	respond := func(w http.ResponseWriter, req *http.Request, key string) {
		if key != knownKey {
			render.JSON(w, req, LicenseResult{Valid: false, Error: "not found"})
			return
		}
		license := validLicense(key)
		render.JSON(w, req, LicenseResult{Valid: true, License: &license})
	}
	r.Post("/api/v1/validate", func(w http.ResponseWriter, req *http.Request) {
		var body validateRequest
		json.NewDecoder(req.Body).Decode(&body)
		respond(w, req, body.LicenseKey)
	})
	r.Post("/api/v1/activate", func(w http.ResponseWriter, req *http.Request) {
		var body activateRequest
		json.NewDecoder(req.Body).Decode(&body)
		respond(w, req, body.LicenseKey)
	})
	r.Post("/api/v1/deactivate", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]bool{"ok": true})
	})
	r.Post("/api/v1/trial", func(w http.ResponseWriter, req *http.Request) {
		license := validLicense("IRON-TRIAL-KEY")
		license.Status = StatusTrial
		license.Type = TypeTrial
		render.JSON(w, req, LicenseResult{Valid: true, License: &license})
	})
	return r
}

// storeState reads the guarded (license, key) pair for invariant checks.
func storeState(c *Client) (*License, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.license, c.key
}

func assertStoreInvariant(t *testing.T, c *Client) {
	t.Helper()
	license, key := storeState(c)
	assert.Equal(t, license != nil, key != "",
		"license present iff license key present")
}

func TestNewClient(t *testing.T) {
	t.Run("construction never contacts the network", func(t *testing.T) {
		var calls atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		opts := NewOptions("pk_test_key", "test-product")
		opts.APIBaseURL = server.URL
		opts.MachineIDPath = filepath.Join(t.TempDir(), "machine_id")

		_, err := New(opts)
		require.NoError(t, err)
		assert.Zero(t, calls.Load())
	})

	t.Run("missing credentials fail fast", func(t *testing.T) {
		_, err := New(NewOptions("", "slug"))
		assert.ErrorIs(t, err, ErrPublicKeyRequired)

		_, err = New(NewOptions("pk_test_key", ""))
		assert.ErrorIs(t, err, ErrProductSlugRequired)
	})

	t.Run("machine id is stable and persisted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "machine_id")
		build := func() *Client {
			opts := NewOptions("pk_test_key", "test-product")
			opts.MachineIDPath = path
			c, err := New(opts)
			require.NoError(t, err)
			return c
		}

		first := build()
		require.NotEmpty(t, first.MachineID())
		assert.Equal(t, first.MachineID(), first.MachineID())
		assert.True(t, first.MachineIDPersisted())

		second := build()
		assert.Equal(t, first.MachineID(), second.MachineID(), "identity survives process restarts")
	})
}

func TestClientValidate(t *testing.T) {
	t.Run("success updates the snapshot", func(t *testing.T) {
		c := newTestClient(t, licensingHandler("IRON-GOOD-KEY"), nil)

		result := c.Validate(context.Background(), "IRON-GOOD-KEY")
		require.True(t, result.Valid)

		assert.Equal(t, StatusValid, c.Status())
		assert.True(t, c.IsLicensed())
		assert.True(t, c.HasFeature("premium"))
		assertStoreInvariant(t, c)

		license := c.License()
		require.NotNil(t, license)
		assert.Equal(t, result.License.Status, license.Status)
		assert.Equal(t, "IRON-GOOD-KEY", license.Key)
	})

	t.Run("rejection leaves the store unchanged", func(t *testing.T) {
		c := newTestClient(t, licensingHandler("IRON-GOOD-KEY"), nil)

		result := c.Validate(context.Background(), "BAD-KEY")
		assert.False(t, result.Valid)
		assert.Equal(t, "not found", result.Error)

		assert.Nil(t, c.License())
		assert.Equal(t, StatusNotActivated, c.Status())
		assert.False(t, c.IsLicensed())
		assertStoreInvariant(t, c)
	})

	t.Run("rejection after success keeps the previous snapshot", func(t *testing.T) {
		c := newTestClient(t, licensingHandler("IRON-GOOD-KEY"), nil)

		require.True(t, c.Validate(context.Background(), "IRON-GOOD-KEY").Valid)
		require.False(t, c.Validate(context.Background(), "BAD-KEY").Valid)

		license := c.License()
		require.NotNil(t, license)
		assert.Equal(t, "IRON-GOOD-KEY", license.Key)
		assertStoreInvariant(t, c)
	})

	t.Run("valid result without a license payload does not update", func(t *testing.T) {
		r := chi.NewRouter()
		r.Post("/api/v1/validate", func(w http.ResponseWriter, req *http.Request) {
			render.JSON(w, req, LicenseResult{Valid: true})
		})
		c := newTestClient(t, r, nil)

		result := c.Validate(context.Background(), "IRON-GOOD-KEY")
		assert.True(t, result.Valid)
		assert.Nil(t, c.License())
		assert.Equal(t, StatusNotActivated, c.Status())
		assertStoreInvariant(t, c)
	})

	t.Run("snapshot copies are isolated", func(t *testing.T) {
		c := newTestClient(t, licensingHandler("IRON-GOOD-KEY"), nil)
		require.True(t, c.Validate(context.Background(), "IRON-GOOD-KEY").Valid)

		snapshot := c.License()
		snapshot.Features[0].Enabled = false
		assert.True(t, c.HasFeature("premium"), "mutating a snapshot must not leak into the store")
	})
}

func TestClientActivateAndDeactivate(t *testing.T) {
	t.Run("activate then deactivate clears entitlements", func(t *testing.T) {
		c := newTestClient(t, licensingHandler("IRON-GOOD-KEY"), nil)

		result := c.Activate(context.Background(), "IRON-GOOD-KEY")
		require.True(t, result.Valid)
		assert.True(t, c.HasFeature("premium"))
		assertStoreInvariant(t, c)

		require.True(t, c.Deactivate(context.Background()))
		assert.False(t, c.HasFeature("premium"))
		assert.Nil(t, c.License())
		assert.Equal(t, StatusNotActivated, c.Status())
		assertStoreInvariant(t, c)
	})

	t.Run("deactivate without a held key is a local no-op", func(t *testing.T) {
		var calls atomic.Int64
		r := chi.NewRouter()
		r.Post("/api/v1/deactivate", func(w http.ResponseWriter, req *http.Request) {
			calls.Add(1)
			render.JSON(w, req, map[string]bool{"ok": true})
		})
		c := newTestClient(t, r, nil)

		assert.False(t, c.Deactivate(context.Background()))
		assert.Zero(t, calls.Load(), "no network call without a stored key")
	})

	t.Run("remote rejection preserves the snapshot", func(t *testing.T) {
		r := chi.NewRouter()
		r.Post("/api/v1/activate", func(w http.ResponseWriter, req *http.Request) {
			license := validLicense("IRON-GOOD-KEY")
			render.JSON(w, req, LicenseResult{Valid: true, License: &license})
		})
		r.Post("/api/v1/deactivate", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
		c := newTestClient(t, r, nil)

		require.True(t, c.Activate(context.Background(), "IRON-GOOD-KEY").Valid)
		assert.False(t, c.Deactivate(context.Background()))
		assert.NotNil(t, c.License())
		assert.True(t, c.HasFeature("premium"))
		assertStoreInvariant(t, c)
	})
}

func TestClientStartTrial(t *testing.T) {
	c := newTestClient(t, licensingHandler("IRON-GOOD-KEY"), nil)

	result := c.StartTrial(context.Background(), "dev@example.com")
	require.True(t, result.Valid)

	assert.Equal(t, StatusTrial, c.Status())
	assert.True(t, c.IsLicensed())
	assert.True(t, c.IsTrial())

	// The trial key from the payload becomes the stored key so a later
	// deactivation can release it.
	_, key := storeState(c)
	assert.Equal(t, "IRON-TRIAL-KEY", key)
	assertStoreInvariant(t, c)
}

func TestClientIsTrial(t *testing.T) {
	serve := func(license License) *Client {
		r := chi.NewRouter()
		r.Post("/api/v1/validate", func(w http.ResponseWriter, req *http.Request) {
			l := license
			render.JSON(w, req, LicenseResult{Valid: true, License: &l})
		})
		return newTestClient(t, r, nil)
	}

	t.Run("trial status alone suffices", func(t *testing.T) {
		license := validLicense("K")
		license.Status = StatusTrial
		license.Type = TypePerpetual
		c := serve(license)
		c.Validate(context.Background(), "K")
		assert.True(t, c.IsTrial())
	})

	t.Run("trial type alone suffices", func(t *testing.T) {
		license := validLicense("K")
		license.Status = StatusValid
		license.Type = TypeTrial
		c := serve(license)
		c.Validate(context.Background(), "K")
		assert.True(t, c.IsTrial())
	})

	t.Run("neither signal means not trial", func(t *testing.T) {
		c := serve(validLicense("K"))
		c.Validate(context.Background(), "K")
		assert.False(t, c.IsTrial())
	})

	t.Run("unlicensed is not trial", func(t *testing.T) {
		c := newTestClient(t, chi.NewRouter(), nil)
		assert.False(t, c.IsTrial())
	})
}

func TestClientFeatureQueries(t *testing.T) {
	c := newTestClient(t, licensingHandler("IRON-GOOD-KEY"), nil)

	t.Run("unlicensed answers", func(t *testing.T) {
		assert.False(t, c.HasFeature("premium"))
		_, ok := c.GetFeature("premium")
		assert.False(t, ok)

		err := c.RequireFeature("premium")
		require.Error(t, err)
		var featureErr *FeatureRequiredError
		require.True(t, errors.As(err, &featureErr))
		assert.Equal(t, "premium", featureErr.Key)
	})

	t.Run("licensed answers", func(t *testing.T) {
		require.True(t, c.Validate(context.Background(), "IRON-GOOD-KEY").Valid)

		assert.True(t, c.HasFeature("premium"))
		assert.NoError(t, c.RequireFeature("premium"))

		f, ok := c.GetFeature("premium")
		require.True(t, ok)
		assert.Equal(t, "Premium", f.Name)

		assert.False(t, c.HasFeature("absent"))
		var featureErr *FeatureRequiredError
		require.ErrorAs(t, c.RequireFeature("absent"), &featureErr)
		assert.Equal(t, "absent", featureErr.Key)
	})
}

// TestClientConcurrentReadsDuringActivation drives many feature checks
// while activations keep replacing the snapshot, and asserts every reader
// observes a fully-consistent license.
func TestClientConcurrentReadsDuringActivation(t *testing.T) {
	licenseFor := func(key string) License {
		id := "A"
		feature := "alpha"
		if key == "IRON-KEY-B" {
			id = "B"
			feature = "beta"
		}
		return License{
			ID:     id,
			Key:    key,
			Status: StatusValid,
			Features: []Feature{
				{Key: feature, Name: feature, Enabled: true},
			},
		}
	}

	r := chi.NewRouter()
	r.Post("/api/v1/activate", func(w http.ResponseWriter, req *http.Request) {
		var body activateRequest
		json.NewDecoder(req.Body).Decode(&body)
		license := licenseFor(body.LicenseKey)
		render.JSON(w, req, LicenseResult{Valid: true, License: &license})
	})
	c := newTestClient(t, r, nil)

	require.True(t, c.Activate(context.Background(), "IRON-KEY-A").Valid)

	var group errgroup.Group
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		group.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				default:
				}

				snapshot := c.License()
				if snapshot == nil {
					return errors.New("snapshot vanished during activation")
				}
				switch snapshot.ID {
				case "A":
					if !snapshot.HasFeature("alpha") || snapshot.HasFeature("beta") {
						return fmt.Errorf("torn snapshot: id=A features=%v", snapshot.Features)
					}
				case "B":
					if !snapshot.HasFeature("beta") || snapshot.HasFeature("alpha") {
						return fmt.Errorf("torn snapshot: id=B features=%v", snapshot.Features)
					}
				default:
					return fmt.Errorf("unexpected snapshot id %q", snapshot.ID)
				}
			}
		})
	}

	group.Go(func() error {
		defer close(done)
		keys := []string{"IRON-KEY-B", "IRON-KEY-A"}
		for i := 0; i < 50; i++ {
			result := c.Activate(context.Background(), keys[i%2])
			if !result.Valid {
				return fmt.Errorf("activation %d failed: %s", i, result.Error)
			}
		}
		return nil
	})

	require.NoError(t, group.Wait())
	assertStoreInvariant(t, c)
}

func TestClientPassThroughOperations(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/tiers", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, tiersResponse{Tiers: []ProductTier{{ID: "tier_pro", Slug: "pro", Name: "Pro"}}})
	})
	r.Post("/api/v1/checkout", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]string{"checkoutUrl": "https://c", "sessionId": "s"})
	})
	c := newTestClient(t, r, nil)

	tiers := c.GetTiers(context.Background())
	require.Len(t, tiers, 1)
	assert.Equal(t, "pro", tiers[0].Slug)

	checkout := c.StartPurchase(context.Background(), "tier_pro", "dev@example.com")
	assert.True(t, checkout.Success)
	assert.Equal(t, "s", checkout.SessionID)
}
