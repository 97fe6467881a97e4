package facts

import (
	"os"
	"regexp"
	"strings"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

// versionTokenPattern picks out the first semantic-version-like token in a
// line: two or three dot-joined numbers, possibly quoted.
var versionTokenPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// versionIDPattern accepts the whole VERSION_ID value, where a bare major
// (Debian ships VERSION_ID="12") is still a version.
var versionIDPattern = regexp.MustCompile(`^\d+(\.\d+)*$`)

func (p *Prober) probeOSVersion() (string, error) {
	data, err := os.ReadFile(p.osReleasePath)
	if err != nil {
		return "", contracts.NewProbeError("failed to read OS release descriptor", err).
			WithCode(contracts.ErrCodeDescriptorMissing).
			WithSubject(p.osReleasePath)
	}

	version, ok := extractOSVersion(string(data))
	if !ok {
		return "", contracts.NewProbeError("OS release descriptor carries no version", nil).
			WithCode(contracts.ErrCodeNoVersionToken).
			WithSubject(p.osReleasePath)
	}
	return version, nil
}

// extractOSVersion pulls the OS version out of an os-release style
// descriptor. The VERSION_ID field is authoritative when present; otherwise
// the first line with a version-like token supplies it, which also covers
// the older lsb-release format.
func extractOSVersion(data string) (string, bool) {
	var fallback string

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "VERSION_ID=") {
			value := strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), `"`)
			if versionIDPattern.MatchString(value) {
				return value, true
			}
			if token := versionTokenPattern.FindString(value); token != "" {
				return token, true
			}
		}

		if fallback == "" {
			fallback = versionTokenPattern.FindString(line)
		}
	}

	return fallback, fallback != ""
}
