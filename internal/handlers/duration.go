package handlers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPart = regexp.MustCompile(`(\d+)\s*([smhdw])`)

var durationUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// ParseDuration accepts sums like "90s", "1h30m", "7d" or "2w 3d". The whole input must match.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	matches := durationPart.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var total time.Duration
	pos := 0
	for _, m := range matches {
		if strings.TrimSpace(s[pos:m[0]]) != "" {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		n, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += time.Duration(n) * durationUnits[s[m[4]:m[5]]]
		pos = m[1]
	}
	if strings.TrimSpace(s[pos:]) != "" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}

// splitDuration takes a leading duration off the command arguments if there is one.
func splitDuration(args string) (time.Duration, string, bool) {
	args = strings.TrimSpace(args)
	if args == "" {
		return 0, "", false
	}
	first, rest, _ := strings.Cut(args, " ")
	d, err := ParseDuration(first)
	if err != nil {
		return 0, args, false
	}
	return d, strings.TrimSpace(rest), true
}
