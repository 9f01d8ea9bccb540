package merge

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[#"'!@$%^()*=+&]`)
)

// SanitizeKey rewrites a field name into template-placeholder form: runs of
// whitespace collapse to a single underscore and characters the placeholder
// syntax can't carry are stripped. Idempotent.
func SanitizeKey(field string) string {
	field = whitespaceRun.ReplaceAllString(field, "_")
	return disallowed.ReplaceAllString(field, "")
}

// datetime layouts the store emits, most specific first.
var datetimeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// FormatValue renders a field value the way users expect it in a merged
// document, dispatched on the schema-declared type. It never fails: empty
// input yields "" regardless of type, and malformed typed input falls back to
// the raw rendering.
func FormatValue(v Value, fieldType string) string {
	if v.IsEmpty() {
		return ""
	}
	switch fieldType {
	case TypeDate:
		return formatDate(v.String())
	case TypeDateTime:
		return formatDateTime(v.String())
	case TypeCurrency:
		n, ok := v.Float()
		if !ok {
			return v.String()
		}
		return "$" + groupThousands(strconv.FormatFloat(n, 'f', 2, 64))
	case TypePercentage:
		n, ok := v.Float()
		if !ok {
			return v.String()
		}
		return strconv.FormatFloat(n*100, 'f', 2, 64) + "%"
	default:
		return v.String()
	}
}

// formatDate rearranges an ISO-like YYYY-MM-DD string into MM/DD/YYYY.
// Anything that doesn't split into exactly three parts passes through as-is.
func formatDate(s string) string {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return s
	}
	return parts[1] + "/" + parts[2] + "/" + parts[0]
}

// formatDateTime renders a store timestamp as a 12-hour clock with meridiem,
// e.g. 05/15/2017 7:30:00 pm. Unparsable input passes through as-is.
func formatDateTime(s string) string {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("01/02/2006 3:04:05 pm")
		}
	}
	return s
}

// groupThousands inserts commas every three digits left of the decimal point.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, d := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if hasFrac {
		return sign + b.String() + "." + frac
	}
	return sign + b.String()
}

// Normalize produces the render form of a record: sanitized keys, values
// formatted per the declared type of the original key. The input record is
// left untouched. Pure; never fails.
func Normalize(rec Record, structure []FieldSchema) map[string]string {
	out := make(map[string]string, len(rec))
	for field, value := range rec {
		out[SanitizeKey(field)] = FormatValue(value, TypeOf(structure, field))
	}
	return out
}
