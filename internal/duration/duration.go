// Package duration turns human-readable activity durations into minutes.
package duration

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	isoduration "github.com/sosodev/duration"
)

// DefaultMinutes is used when a duration cannot be parsed.
const DefaultMinutes = 120

var (
	hourToken   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*h(?:ours?|rs?)?`)
	minuteToken = regexp.MustCompile(`(?i)(\d+)\s*m(?:in(?:ute)?s?)?`)
	bareNumber  = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)
)

// ParseMinutes returns the duration described by text in minutes, or
// DefaultMinutes if text is empty or unparseable. The result is always
// positive.
func ParseMinutes(text string) int {
	m, _ := Parse(text)
	return m
}

// Parse is ParseMinutes that also reports whether text was understood.
// When ok is false the returned value is DefaultMinutes.
func Parse(text string) (minutes int, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultMinutes, false
	}

	if m, ok := parseISO(text); ok {
		return m, true
	}

	total := 0.0
	matched := false
	for _, g := range hourToken.FindAllStringSubmatch(text, -1) {
		if h, err := strconv.ParseFloat(g[1], 64); err == nil {
			total += h * 60
			matched = true
		}
	}
	for _, g := range minuteToken.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(g[1]); err == nil {
			total += float64(n)
			matched = true
		}
	}

	if !matched {
		// A bare leading number is read as hours: "2" -> 120, "1.25" -> 75.
		g := bareNumber.FindStringSubmatch(text)
		if g == nil {
			return DefaultMinutes, false
		}
		h, err := strconv.ParseFloat(g[1], 64)
		if err != nil {
			return DefaultMinutes, false
		}
		total = h * 60
	}

	if total > math.MaxInt32 {
		return DefaultMinutes, false
	}
	out := int(math.Round(total))
	if out <= 0 {
		return DefaultMinutes, false
	}
	return out, true
}

// parseISO handles ISO-8601 durations such as "PT1H30M".
func parseISO(text string) (int, bool) {
	upper := strings.ToUpper(text)
	if !strings.HasPrefix(upper, "P") {
		return 0, false
	}
	d, err := isoduration.Parse(upper)
	if err != nil {
		return 0, false
	}
	mins := d.ToTimeDuration().Minutes()
	if mins > math.MaxInt32 {
		return 0, false
	}
	m := int(math.Round(mins))
	if m <= 0 {
		return 0, false
	}
	return m, true
}
