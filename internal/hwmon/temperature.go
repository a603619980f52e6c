package hwmon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// thermalRoot is overridable in tests.
var thermalRoot = "/sys/class/thermal"

// ReadTemperature returns the hottest thermal zone in degrees Celsius.
// Single-board machines expose millidegrees under
// /sys/class/thermal/thermal_zone*/temp; a host without thermal zones
// reports ok=false.
func ReadTemperature() (celsius float64, ok bool) {
	zones, err := filepath.Glob(filepath.Join(thermalRoot, "thermal_zone*", "temp"))
	if err != nil || len(zones) == 0 {
		return 0, false
	}
	hottest := 0.0
	for _, zone := range zones {
		raw, err := os.ReadFile(zone)
		if err != nil {
			continue
		}
		milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}
		if c := milli / 1000.0; !ok || c > hottest {
			hottest = c
			ok = true
		}
	}
	return hottest, ok
}
