package cli

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wagiedev/agentproto/internal/errors"
)

const (
	// DefaultBinary is the executable name searched for when no path is given.
	DefaultBinary = "claude"

	// MinimumVersion is the oldest CLI that speaks the control protocol.
	MinimumVersion = "2.0.0"

	// VersionCheckTimeout bounds the "-v" probe.
	VersionCheckTimeout = 2 * time.Second

	// SkipVersionCheckEnv disables the version probe when set to any value.
	SkipVersionCheckEnv = "AGENTPROTO_SKIP_VERSION_CHECK"
)

var versionPattern = regexp.MustCompile(`^([0-9]+\.[0-9]+\.[0-9]+)`)

// Config holds configuration for CLI discovery.
type Config struct {
	// CliPath is an explicit path. When set, nothing else is searched.
	CliPath string

	// Binary overrides DefaultBinary.
	Binary string

	// SkipVersionCheck skips the version probe.
	SkipVersionCheck bool
}

// Discoverer locates the agent CLI binary.
type Discoverer interface {
	// Discover returns the path of the CLI binary.
	Discover(ctx context.Context) (string, error)
}

type discoverer struct {
	cfg  Config
	log  *slog.Logger
	home func() (string, error)
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(log *slog.Logger, cfg Config) Discoverer {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}

	return &discoverer{
		cfg:  cfg,
		log:  log.With("component", "cli_discovery"),
		home: os.UserHomeDir,
	}
}

// Discover locates the binary and warns if its version is too old.
func (d *discoverer) Discover(ctx context.Context) (string, error) {
	path, err := d.find()
	if err != nil {
		d.log.Error("Agent CLI not found", "error", err)

		return "", err
	}

	d.log.Debug("Found agent CLI", "cli_path", path)

	if !d.cfg.SkipVersionCheck && os.Getenv(SkipVersionCheckEnv) == "" {
		d.checkVersion(ctx, path)
	}

	return path, nil
}

// candidates lists the install locations probed after PATH.
func (d *discoverer) candidates() []string {
	paths := []string{
		filepath.Join("/usr/local/bin", d.cfg.Binary),
		filepath.Join("/usr/bin", d.cfg.Binary),
	}

	if home, err := d.home(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".local", "bin", d.cfg.Binary),
			filepath.Join(home, ".claude", "local", d.cfg.Binary),
		)
	}

	return paths
}

func (d *discoverer) find() (string, error) {
	if d.cfg.CliPath != "" {
		if isExecutable(d.cfg.CliPath) {
			return d.cfg.CliPath, nil
		}

		return "", &errors.CLINotFoundError{SearchedPaths: []string{d.cfg.CliPath}}
	}

	if path, err := exec.LookPath(d.cfg.Binary); err == nil {
		return path, nil
	}

	searched := []string{"$PATH"}

	for _, path := range d.candidates() {
		searched = append(searched, path)

		if isExecutable(path) {
			return path, nil
		}
	}

	return "", &errors.CLINotFoundError{SearchedPaths: searched}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	return info.Mode()&0o111 != 0
}

// checkVersion logs a warning when the CLI is older than MinimumVersion.
// Probe failures are logged at Debug and otherwise ignored.
func (d *discoverer) checkVersion(ctx context.Context, path string) {
	ctx, cancel := context.WithTimeout(ctx, VersionCheckTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-v").Output()
	if err != nil {
		d.log.Debug("CLI version probe failed", "error", err)

		return
	}

	version, ok := parseVersion(string(out))
	if !ok {
		d.log.Debug("Could not parse CLI version", "output", strings.TrimSpace(string(out)))

		return
	}

	if compareVersions(version, MinimumVersion) < 0 {
		d.log.Warn("Agent CLI is older than supported",
			"version", version,
			"minimum_required", MinimumVersion,
		)

		return
	}

	d.log.Debug("CLI version check passed", "version", version)
}

func parseVersion(output string) (string, bool) {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(output))
	if m == nil {
		return "", false
	}

	return m[1], true
}

// compareVersions compares two dotted versions.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func compareVersions(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	for i := range 3 {
		var aNum, bNum int

		if i < len(aParts) {
			aNum, _ = strconv.Atoi(aParts[i])
		}

		if i < len(bParts) {
			bNum, _ = strconv.Atoi(bParts[i])
		}

		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		}
	}

	return 0
}
