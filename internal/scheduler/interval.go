package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// cronPattern matches cron expressions with 5 or 6 fields
var cronPattern = regexp.MustCompile(`^(\S+\s+){4,5}\S+$`)

// alignment describes how a duration of one unit maps onto a cron field.
// Only divisors of span stay aligned to the clock.
type alignment struct {
	unit   time.Duration
	span   int
	suffix string
	format string
}

var alignments = []alignment{
	{time.Second, 60, "s", "*/%d * * * * *"},
	{time.Minute, 60, "m", "*/%d * * * *"},
	{time.Hour, 24, "h", "0 */%d * * *"},
}

// isCronExpression reports whether s looks like a cron expression rather than a duration
func isCronExpression(s string) bool {
	return cronPattern.MatchString(s)
}

// durationToCron converts a duration such as "5m" into a clock-aligned cron
// expression ("*/5 * * * *"). Sub-minute durations produce 6-field expressions.
func durationToCron(durationStr string) (string, error) {
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return "", fmt.Errorf("invalid duration format: %w", err)
	}

	for i, a := range alignments {
		last := i == len(alignments)-1
		if !last && d >= alignments[i+1].unit {
			continue
		}
		if d <= 0 || d%a.unit != 0 {
			break
		}
		n := int(d / a.unit)
		if a.span%n != 0 {
			return "", fmt.Errorf("%s intervals must divide evenly into %d (got %d%s)", a.suffix, a.span, n, a.suffix)
		}
		return fmt.Sprintf(a.format, n), nil
	}
	return "", fmt.Errorf("duration must be whole seconds, minutes, or hours (got %s)", durationStr)
}

// ValidateScheduleInterval validates a schedule interval (duration or cron).
// An empty interval is valid and disables scheduling.
func ValidateScheduleInterval(interval string) error {
	if interval == "" {
		return nil
	}

	if isCronExpression(interval) {
		if n := len(strings.Fields(interval)); n != 5 && n != 6 {
			return errors.New("cron expression must have 5 or 6 fields")
		}
		return nil
	}

	_, err := durationToCron(interval)
	return err
}

// toCron returns the cron expression for interval and whether it has a seconds field
func toCron(interval string) (string, bool, error) {
	expr := interval
	if !isCronExpression(interval) {
		var err error
		if expr, err = durationToCron(interval); err != nil {
			return "", false, fmt.Errorf("invalid interval: %w", err)
		}
	}
	return expr, len(strings.Fields(expr)) == 6, nil
}

// DescribeSchedule provides a human-readable description of the schedule
func DescribeSchedule(interval string, timezone *time.Location) string {
	if timezone == nil {
		timezone = time.UTC
	}
	if interval == "" {
		return "disabled"
	}

	if isCronExpression(interval) {
		return fmt.Sprintf("cron: %s (%s)", interval, timezone.String())
	}

	d, err := time.ParseDuration(interval)
	if err != nil {
		return fmt.Sprintf("invalid: %s", interval)
	}

	expr, err := durationToCron(interval)
	if err != nil {
		return fmt.Sprintf("duration: %s (non-aligned)", interval)
	}

	return fmt.Sprintf("every %s (aligned to clock, cron: %s, %s)", d, expr, timezone.String())
}
