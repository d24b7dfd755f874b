package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Client versions travel as a packed int32: year*25000 + month*1800 +
// day*50 + revision.

// ParseVersionString converts "2022.8.24" or "2022.8.24.1" into the wire
// integer.
func ParseVersionString(s string) (int32, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 && len(parts) != 4 {
		return 0, fmt.Errorf("protocol: bad version string %q", s)
	}
	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("protocol: bad version string %q: %w", s, err)
		}
		nums[i] = n
	}
	return int32(nums[0]*25000 + nums[1]*1800 + nums[2]*50 + nums[3]), nil
}

// FormatVersion renders a wire version integer back into dotted form.
func FormatVersion(v int32) string {
	year := v / 25000
	v %= 25000
	month := v / 1800
	v %= 1800
	day := v / 50
	rev := v % 50
	if rev == 0 {
		return fmt.Sprintf("%d.%d.%d", year, month, day)
	}
	return fmt.Sprintf("%d.%d.%d.%d", year, month, day, rev)
}
