// Package facts probes the local device for the version facts that
// compatibility requirements are evaluated against: the compiled-in agent
// version, the host OS version from the os-release descriptor, and the L4T
// platform revision carried by NVIDIA kernel release strings.
//
// Facts are collected fresh on every probe and never cached, so resolutions
// always see the device as it currently is.
package facts
