package utils

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ParseLineKeyValue parses a line into a key-value pair.
func ParseLineKeyValue(line, sep string) (string, string, bool) {
	idx := strings.Index(line, sep)
	if idx <= 0 {
		return "", "", false
	}

	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// FileExists checks if the file exists and is a regular file
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func CombineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	validErrors := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			validErrors = append(validErrors, err)
		}
	}

	switch len(validErrors) {
	case 0:
		return nil
	case 1:
		return validErrors[0]
	default:
		return errors.Join(validErrors...)
	}
}

func HasPrefix(str string, target []string) bool {
	if len(target) == 0 {
		return false
	}

	for _, prefix := range target {
		if strings.HasPrefix(str, prefix) {
			return true
		}
	}

	return false
}

func FillField(s string, t *string) {
	if s == "" || *t != "" {
		return
	}

	*t = s
}

var sizePattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*([KMGTP]?)I?B?$`)

var sizeMultiplier = map[string]float64{
	"":  1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
	"P": 1 << 50,
}

// ParseSize converts controller-reported capacity strings ("1.819 TB",
// "931.512 GB", "1907729 MB") into bytes. The controller CLIs print binary
// capacities under decimal-looking suffixes: a 1 TB drive shows as
// "931.512 GB", which is GiB. Binary multipliers land within a fraction of
// a percent of the kernel's byte-exact size, so reconciliation can compare
// the two. Returns 0 for anything unparseable.
func ParseSize(s string) uint64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0
	}

	m := sizePattern.FindStringSubmatch(strings.ReplaceAll(s, " ", ""))
	if m == nil {
		return 0
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}

	return uint64(value * sizeMultiplier[m[2]])
}

// HumanSize renders bytes the way lsblk does, for logs and certificates.
func HumanSize(b uint64) string {
	units := []struct {
		unit   float64
		suffix string
	}{
		{1e12, "TB"},
		{1e9, "GB"},
		{1e6, "MB"},
		{1e3, "KB"},
	}

	for _, u := range units {
		if float64(b) >= u.unit {
			return fmt.Sprintf("%.1f %s", float64(b)/u.unit, u.suffix)
		}
	}

	return strconv.FormatUint(b, 10) + " B"
}
