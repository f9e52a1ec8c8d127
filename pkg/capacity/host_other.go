//go:build !linux

package capacity

import "errors"

// HostResources is not implemented off Linux; the sizer falls back to its default
func HostResources() (Resources, error) {
	return Resources{CPUCores: numCPU()}, errors.New("memory introspection unsupported on this platform")
}
