package ironlicensing

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetDefaultClient clears the process-wide client between tests. Tests in
// this file share package-level state, so each one starts from a clean slate.
func resetDefaultClient(t *testing.T) {
	t.Helper()
	defaultMu.Lock()
	defaultClient = nil
	defaultMu.Unlock()
	t.Cleanup(func() {
		defaultMu.Lock()
		defaultClient = nil
		defaultMu.Unlock()
	})
}

func TestDefaultClientLifecycle(t *testing.T) {
	t.Run("convenience functions fail before Init", func(t *testing.T) {
		resetDefaultClient(t)

		_, err := DefaultClient()
		assert.ErrorIs(t, err, ErrNotInitialized)

		_, err = Validate(context.Background(), "IRON-KEY")
		assert.ErrorIs(t, err, ErrNotInitialized)

		_, err = HasFeature("premium")
		assert.ErrorIs(t, err, ErrNotInitialized)

		assert.ErrorIs(t, RequireFeature("premium"), ErrNotInitialized)

		status, err := Status()
		assert.ErrorIs(t, err, ErrNotInitialized)
		assert.Equal(t, StatusNotActivated, status)

		_, err = MachineID()
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("Init succeeds once and rejects a second call", func(t *testing.T) {
		resetDefaultClient(t)

		require.NoError(t, Init("pk_test_key", "test-product"))
		assert.ErrorIs(t, Init("pk_test_key", "test-product"), ErrAlreadyInitialized)

		c, err := DefaultClient()
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("Init propagates credential errors without claiming the slot", func(t *testing.T) {
		resetDefaultClient(t)

		assert.ErrorIs(t, Init("", "test-product"), ErrPublicKeyRequired)

		// A failed Init must not block a later correct one.
		require.NoError(t, Init("pk_test_key", "test-product"))
	})

	t.Run("convenience functions delegate to the initialized client", func(t *testing.T) {
		resetDefaultClient(t)

		server := httptest.NewServer(licensingHandler("IRON-GOOD-KEY"))
		t.Cleanup(server.Close)

		opts := NewOptions("pk_test_key", "test-product")
		opts.APIBaseURL = server.URL
		opts.MachineIDPath = filepath.Join(t.TempDir(), "machine_id")
		require.NoError(t, InitWithOptions(opts))

		result, err := Validate(context.Background(), "IRON-GOOD-KEY")
		require.NoError(t, err)
		require.True(t, result.Valid)

		licensed, err := IsLicensed()
		require.NoError(t, err)
		assert.True(t, licensed)

		has, err := HasFeature("premium")
		require.NoError(t, err)
		assert.True(t, has)

		license, err := CurrentLicense()
		require.NoError(t, err)
		require.NotNil(t, license)
		assert.Equal(t, "IRON-GOOD-KEY", license.Key)

		id, err := MachineID()
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		ok, err := Deactivate(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)

		licensed, err = IsLicensed()
		require.NoError(t, err)
		assert.False(t, licensed)
	})
}
