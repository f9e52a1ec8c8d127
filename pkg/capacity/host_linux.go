//go:build linux

package capacity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// HostResources reads logical CPUs and memory via sysinfo(2)
func HostResources() (Resources, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Resources{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return Resources{
		CPUCores:    numCPU(),
		TotalMemory: uint64(info.Totalram) * unit,
		FreeMemory:  (uint64(info.Freeram) + uint64(info.Bufferram)) * unit,
	}, nil
}
