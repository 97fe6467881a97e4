package facts

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

const (
	// DefaultOSReleasePath is the standard os-release descriptor location.
	DefaultOSReleasePath = "/etc/os-release"

	// defaultProbeTimeout bounds each external probe. Descriptor reads and
	// uname return near-instantly on a healthy device; a hung probe must
	// not stall the resolution loop.
	defaultProbeTimeout = 5 * time.Second
)

// Prober collects the device facts a resolution evaluates against. Every
// Probe call reads the device fresh; facts are never cached, so a changed
// kernel or OS image is visible on the next resolution.
type Prober struct {
	agentVersion  string
	osReleasePath string
	unameFn       func(ctx context.Context) (string, error)
	timeout       time.Duration
	logger        zerolog.Logger
}

// NewProber creates a prober reporting the given compiled-in agent version.
// A version string that is not a semantic version (development builds ship
// "dev") is normalized to 0.0.0-dev so agent requirements always have a
// comparable value.
func NewProber(agentVersion string, logger zerolog.Logger) *Prober {
	if _, err := contracts.ParseVersion(agentVersion); err != nil {
		logger.Debug().Str("version", agentVersion).Msg("agent version is not semver, normalizing")
		agentVersion = "0.0.0-dev"
	}

	return &Prober{
		agentVersion:  agentVersion,
		osReleasePath: DefaultOSReleasePath,
		unameFn:       kernelRelease,
		timeout:       defaultProbeTimeout,
		logger:        logger.With().Str("component", "prober").Logger(),
	}
}

// AgentVersion returns the compiled-in agent version. It never fails.
func (p *Prober) AgentVersion() string {
	return p.agentVersion
}

// SetTimeout overrides the per-probe timeout. Non-positive values keep
// the current timeout.
func (p *Prober) SetTimeout(d time.Duration) {
	if d > 0 {
		p.timeout = d
	}
}

// Probe collects a fresh facts snapshot. The host OS version and the kernel
// release are mandatory: failure to read either aborts with a probe-class
// error. A kernel without an L4T platform marker is an ordinary non-L4T
// device, so the L4T fact is simply absent.
func (p *Prober) Probe(ctx context.Context) (contracts.Facts, error) {
	facts := contracts.Facts{AgentVersion: p.agentVersion}

	osVersion, err := p.probeOSVersion()
	if err != nil {
		return contracts.Facts{}, err
	}
	facts.OSVersion = osVersion

	release, err := p.probeKernelRelease(ctx)
	if err != nil {
		return contracts.Facts{}, err
	}

	if rev, ok := ParseL4TRevision(release); ok {
		facts.L4T = rev
	}

	p.logger.Debug().
		Str("agent_version", facts.AgentVersion).
		Str("os_version", facts.OSVersion).
		Str("kernel_release", release).
		Str("l4t", facts.L4T).
		Msg("device facts collected")

	return facts, nil
}

func (p *Prober) probeKernelRelease(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	release, err := p.unameFn(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", contracts.NewProbeError("kernel release probe timed out", err).
				WithCode(contracts.ErrCodeProbeTimeout)
		}
		return "", contracts.NewProbeError("failed to read kernel release", err).
			WithCode(contracts.ErrCodeProbeExec)
	}

	release = strings.TrimSpace(release)
	if release == "" {
		return "", contracts.NewProbeError("kernel release probe returned nothing", nil).
			WithCode(contracts.ErrCodeProbeExec)
	}
	return release, nil
}

// kernelRelease shells out to uname, the one place the kernel release is
// authoritative regardless of distribution.
func kernelRelease(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "uname", "-r").Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("uname -r: %w", err)
	}
	return string(out), nil
}
