package facts

import "regexp"

// l4tMarkerPattern matches the L4T platform marker NVIDIA kernels carry in
// their release string, e.g. "4.9.140-l4t-r32.2+g3dcbed5". Anything after
// the major.minor revision is build metadata and ignored.
var l4tMarkerPattern = regexp.MustCompile(`-l4t-r(\d+\.\d+)`)

// ParseL4TRevision extracts the L4T platform revision from a kernel release
// string. Kernels without the marker are ordinary non-L4T kernels: the
// second return is false and no revision exists.
func ParseL4TRevision(release string) (string, bool) {
	m := l4tMarkerPattern.FindStringSubmatch(release)
	if m == nil {
		return "", false
	}
	return m[1], true
}
