// Package power reads the device battery state from Linux sysfs.
package power

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/lox/showcase/internal/models"
)

// SysfsRoot is where power supplies are listed on Linux.
const SysfsRoot = "/sys/class/power_supply"

// Read returns the first battery found under root. ok is false when the
// device has no readable battery.
func Read(root string) (models.Battery, bool) {
	if root == "" {
		root = SysfsRoot
	}
	matches, err := filepath.Glob(filepath.Join(root, "BAT*"))
	if err != nil || len(matches) == 0 {
		return models.Battery{}, false
	}
	sort.Strings(matches)

	for _, dir := range matches {
		capacity, err := readTrimmed(filepath.Join(dir, "capacity"))
		if err != nil {
			continue
		}
		level, err := strconv.Atoi(capacity)
		if err != nil || level < 0 || level > 100 {
			continue
		}
		status, _ := readTrimmed(filepath.Join(dir, "status"))
		return models.Battery{
			Level:    level,
			Charging: strings.EqualFold(status, "Charging") || strings.EqualFold(status, "Full"),
		}, true
	}
	return models.Battery{}, false
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
