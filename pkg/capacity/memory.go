package capacity

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// ParseMemory parses memory strings like "2Gi", "2048Mi", "2G", "512MB" into bytes.
// A bare number is interpreted as GiB.
func ParseMemory(memStr string) (uint64, error) {
	memStr = strings.ToUpper(strings.TrimSpace(memStr))
	if memStr == "" {
		return 0, fmt.Errorf("empty memory value")
	}

	units := []struct {
		suffix string
		factor float64
	}{
		{"GIB", gib}, {"GI", gib},
		{"MIB", mib}, {"MI", mib},
		{"KIB", kib}, {"KI", kib},
		{"GB", 1e9}, {"G", 1e9},
		{"MB", 1e6}, {"M", 1e6},
		{"KB", 1e3}, {"K", 1e3},
	}

	factor := float64(gib)
	for _, u := range units {
		if strings.HasSuffix(memStr, u.suffix) {
			memStr = strings.TrimSuffix(memStr, u.suffix)
			factor = u.factor
			break
		}
	}

	num, err := strconv.ParseFloat(strings.TrimSpace(memStr), 64)
	if err != nil {
		return 0, err
	}
	if num < 0 {
		return 0, fmt.Errorf("negative memory value")
	}
	return uint64(num * factor), nil
}
