package schedule

import (
	"strconv"
	"strings"

	"github.com/flemzord/snapkeep/internal/errdefs"
)

// Presets maps preset names to their cron expressions.
var Presets = map[string]string{
	"hourly":    "0 * * * *",
	"daily":     "0 3 * * *",
	"every-6h":  "0 */6 * * *",
	"every-12h": "0 */12 * * *",
	"weekly":    "0 3 * * 0",
}

var presetDescriptions = map[string]string{
	"0 * * * *":    "Every hour",
	"0 3 * * *":    "Daily at 3:00 AM",
	"0 */6 * * *":  "Every 6 hours",
	"0 */12 * * *": "Every 12 hours",
	"0 3 * * 0":    "Weekly on Sunday at 3:00 AM",
}

type fieldRange struct {
	name     string
	min, max int
}

var cronFields = [5]fieldRange{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 7},
}

// Cron is a validated five-field cron expression.
type Cron struct {
	expr string
}

// ParseCron validates expr and returns it normalized (trimmed, single
// spaces between fields).
func ParseCron(expr string) (Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return Cron{}, errdefs.Validationf("cron expression cannot be empty")
	}
	if len(fields) != len(cronFields) {
		return Cron{}, errdefs.Validationf(
			"invalid cron expression %q: expected 5 fields (minute hour day-of-month month day-of-week), got %d",
			expr, len(fields))
	}
	for i, f := range fields {
		if err := validateField(f, cronFields[i]); err != nil {
			return Cron{}, err
		}
	}
	return Cron{expr: strings.Join(fields, " ")}, nil
}

// FromPreset returns the expression registered under name.
func FromPreset(name string) (Cron, error) {
	expr, ok := Presets[name]
	if !ok {
		return Cron{}, errdefs.Validationf("unknown cron preset %q", name)
	}
	return Cron{expr: expr}, nil
}

// String returns the normalized expression.
func (c Cron) String() string { return c.expr }

// Spec returns the expression in the form accepted by the cron runner,
// which only knows day-of-week 0-6. Sunday written as 7 is folded to 0.
func (c Cron) Spec() string {
	fields := strings.Fields(c.expr)
	if len(fields) != len(cronFields) {
		return c.expr
	}
	parts := strings.Split(fields[4], ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, foldSunday(p)...)
	}
	fields[4] = strings.Join(out, ",")
	return strings.Join(fields, " ")
}

func foldSunday(part string) []string {
	if part == "7" {
		return []string{"0"}
	}
	base, step, hasStep := strings.Cut(part, "/")
	lo, hi, isRange := strings.Cut(base, "-")
	if !isRange && hasStep && base != "*" {
		// "a/n" runs to the end of the week.
		lo, hi = base, "7"
	}
	if hi != "7" {
		return []string{part}
	}
	start, _ := strconv.Atoi(lo)
	n := 1
	if hasStep {
		n, _ = strconv.Atoi(step)
	}
	var out []string
	if start <= 6 {
		r := lo + "-6"
		if start == 6 {
			r = "6"
		}
		if hasStep {
			r = lo + "-6/" + step
		}
		out = append(out, r)
	}
	if n > 0 && (7-start)%n == 0 {
		out = append(out, "0")
	}
	return out
}

// HumanReadable describes the expression. Presets get a sentence, anything
// else is echoed back as "Cron: <expr>".
func (c Cron) HumanReadable() string {
	return Describe(c.expr)
}

// Describe returns the human-readable form of a raw expression.
func Describe(expr string) string {
	if d, ok := presetDescriptions[expr]; ok {
		return d
	}
	return "Cron: " + expr
}

func validateField(field string, r fieldRange) error {
	if field == "*" {
		return nil
	}

	// Lists are split first so "1-5,10" and "*/5,30" are accepted.
	if strings.Contains(field, ",") {
		for part := range strings.SplitSeq(field, ",") {
			if err := validateField(part, r); err != nil {
				return err
			}
		}
		return nil
	}

	if base, step, ok := strings.Cut(field, "/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n < 1 {
			return errdefs.Validationf("invalid step value in %s field: %q", r.name, field)
		}
		if base == "*" {
			return nil
		}
		return validateField(base, r)
	}

	if lo, hi, ok := strings.Cut(field, "-"); ok {
		start, err1 := strconv.Atoi(lo)
		end, err2 := strconv.Atoi(hi)
		if err1 != nil || err2 != nil {
			return errdefs.Validationf("invalid range in %s field: %q", r.name, field)
		}
		if start < r.min || start > r.max || end < r.min || end > r.max {
			return errdefs.Validationf("value out of range in %s field: %q (allowed: %d-%d)", r.name, field, r.min, r.max)
		}
		if start > end {
			return errdefs.Validationf("invalid range in %s field: start (%d) > end (%d)", r.name, start, end)
		}
		return nil
	}

	n, err := strconv.Atoi(field)
	if err != nil {
		return errdefs.Validationf("invalid value in %s field: %q", r.name, field)
	}
	if n < r.min || n > r.max {
		return errdefs.Validationf("value out of range in %s field: %d (allowed: %d-%d)", r.name, n, r.min, r.max)
	}
	return nil
}
