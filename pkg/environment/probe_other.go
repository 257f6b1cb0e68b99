//go:build !linux

package environment

func probeSocket() ProbeResult {
	return ProbeUnsupported
}
