// Package machineid resolves a stable per-host identifier used to bind
// license activations to a machine. The identifier is generated once and
// persisted best-effort under the user's home directory; persistence
// failures are survivable and reported through the Identity so embedders
// can detect reduced activation-tracking fidelity.
package machineid

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	dirName  = ".ironlicensing"
	fileName = "machine_id"
)

// Identity is a resolved machine identifier.
type Identity struct {
	// ID is the opaque identifier, stable for the process lifetime.
	ID string
	// Persisted reports whether the identifier survives a process restart.
	// False means the identity file could not be written and a fresh ID
	// will be generated next run.
	Persisted bool
	// Path is the identity file location.
	Path string
}

// DefaultPath returns the per-user identity file path. Falls back to the
// working directory when the home directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dirName, fileName)
}

// Resolve loads the machine identity from the default per-user path,
// creating and persisting a new one on first run.
func Resolve(logger *slog.Logger) Identity {
	return ResolveAt(DefaultPath(), logger)
}

// ResolveAt loads or creates the machine identity at the given file path.
// A write failure is not fatal: the freshly generated in-memory value is
// used for this process and the failure is logged.
func ResolveAt(path string, logger *slog.Logger) Identity {
	if logger == nil {
		logger = slog.Default()
	}

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return Identity{ID: id, Persisted: true, Path: path}
		}
		logger.Warn("machine identity file is empty, regenerating",
			slog.String("path", path),
		)
	}

	id := uuid.NewString()
	identity := Identity{ID: id, Persisted: true, Path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		identity.Persisted = false
		logger.Warn("machine identity directory not writable, using in-memory identity",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return identity
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		identity.Persisted = false
		logger.Warn("machine identity not persisted, using in-memory identity",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return identity
	}

	logger.Info("machine identity generated",
		slog.String("path", path),
	)
	return identity
}
