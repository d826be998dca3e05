package discovery

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/wagiedev/proc-macro-client-go/internal/errors"
)

const (
	// ServerBinary is the file name of the proc-macro server.
	ServerBinary = "rust-analyzer-proc-macro-srv"

	// SysrootTimeout bounds the rustc invocation used to find the toolchain.
	SysrootTimeout = 2 * time.Second
)

// Config holds configuration for server discovery.
type Config struct {
	// ServerPath is an explicit server path that skips every other lookup.
	ServerPath string

	// Rustc is the compiler used to locate the toolchain sysroot.
	// Defaults to "rustc" resolved through PATH.
	Rustc string

	// Logger is an optional logger for discovery operations.
	// If nil, a default no-op logger is used.
	Logger *slog.Logger
}

// Discoverer locates the proc-macro server binary.
type Discoverer interface {
	// Discover returns the path of the server binary or a
	// *errors.ServerNotFoundError listing the searched locations.
	Discover(ctx context.Context) (string, error)
}

type discoverer struct {
	cfg *Config
	log *slog.Logger
}

var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new server discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &discoverer{
		cfg: cfg,
		log: log.With("component", "discovery"),
	}
}

// Discover locates the proc-macro server binary.
func (d *discoverer) Discover(ctx context.Context) (string, error) {
	if d.cfg.ServerPath != "" {
		d.log.Debug("Using explicit server path", "path", d.cfg.ServerPath)

		if isExecutable(d.cfg.ServerPath) {
			return d.cfg.ServerPath, nil
		}

		return "", &errors.ServerNotFoundError{SearchedPaths: []string{d.cfg.ServerPath}}
	}

	searchedPaths := make([]string, 0, 3)

	if path, err := exec.LookPath(ServerBinary); err == nil {
		d.log.Debug("Found server in PATH", "path", path)

		return path, nil
	}

	searchedPaths = append(searchedPaths, "$PATH")

	candidates := make([]string, 0, 2)

	if sysroot := d.sysroot(ctx); sysroot != "" {
		candidates = append(candidates, filepath.Join(sysroot, "libexec", ServerBinary))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".cargo", "bin", ServerBinary))
	}

	for _, path := range candidates {
		searchedPaths = append(searchedPaths, path)

		if isExecutable(path) {
			d.log.Debug("Found server", "path", path)

			return path, nil
		}
	}

	d.log.Warn("Proc-macro server not found in any searched paths", "searched_paths", searchedPaths)

	return "", &errors.ServerNotFoundError{SearchedPaths: searchedPaths}
}

// sysroot asks rustc for the toolchain root. Failures yield "".
func (d *discoverer) sysroot(ctx context.Context) string {
	rustc := d.cfg.Rustc
	if rustc == "" {
		rustc = "rustc"
	}

	ctx, cancel := context.WithTimeout(ctx, SysrootTimeout)
	defer cancel()

	//nolint:gosec // G204: rustc path comes from configuration
	out, err := exec.CommandContext(ctx, rustc, "--print", "sysroot").Output()
	if err != nil {
		d.log.Debug("Sysroot lookup failed", "rustc", rustc, "error", err)

		return ""
	}

	return strings.TrimSpace(string(out))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	return info.Mode().Perm()&0o111 != 0
}
