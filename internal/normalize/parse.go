package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	moneyToken  = regexp.MustCompile(`(\d+(?:\.\d+)?)(k)?`)
	intToken    = regexp.MustCompile(`\d+`)
	floatToken  = regexp.MustCompile(`\d+(?:\.\d+)?`)
	skillSplit  = regexp.MustCompile(`[,;|/•\n]+`)
	spaceRun    = regexp.MustCompile(`[ \t\r\f\v]+`)
	timeLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

var truthy = map[string]bool{
	"1":                true,
	"true":             true,
	"yes":              true,
	"y":                true,
	"verified":         true,
	"payment verified": true,
}

// Text renders v as a single-line NFKC-normalized string with collapsed
// whitespace.
func Text(v any) string {
	s := norm.NFKC.String(stringify(v))
	return strings.Join(strings.Fields(s), " ")
}

// Body renders v as NFKC-normalized free text. Line breaks survive;
// runs of other whitespace collapse to one space.
func Body(v any) string {
	s := norm.NFKC.String(stringify(v))
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ParseMoney resolves loosely formatted money text to one number.
// Every number in the text counts, "k" multiplies by 1000, and the result
// is their mean, so "$500-$1,500" yields 1000 and "2k" yields 2000.
func ParseMoney(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	text := strings.ToLower(strings.TrimSpace(stringify(v)))
	if text == "" {
		return 0, false
	}
	text = strings.ReplaceAll(text, ",", "")
	matches := moneyToken.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	var sum float64
	for _, m := range matches {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		if m[2] == "k" {
			n *= 1000
		}
		sum += n
	}
	return sum / float64(len(matches)), true
}

// ParseInt returns the first integer in v ("50+" is 50, "10 to 15" is 10).
func ParseInt(v any) (int, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	m := intToken.FindString(stringify(v))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseFloat returns the first decimal number in v.
func ParseFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	m := floatToken.FindString(stringify(v))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseBool accepts boolean-ish marketplace text such as "yes" or
// "Payment verified".
func ParseBool(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t == 1
	}
	return truthy[strings.ToLower(strings.TrimSpace(stringify(v)))]
}

// ParseTime parses ISO-8601 style timestamps. Values without a zone are
// taken as UTC.
func ParseTime(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), true
	}
	text := strings.TrimSpace(stringify(v))
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// SplitSkills turns a skill field into a de-duplicated tag list. It accepts
// JSON arrays (decoded or as text) and delimiter-separated text.
func SplitSkills(v any) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
		return []string{}
	case []any:
		for _, item := range t {
			raw = append(raw, stringify(item))
		}
	case []string:
		raw = t
	default:
		text := strings.TrimSpace(stringify(v))
		if strings.HasPrefix(text, "[") {
			var decoded []string
			if err := json.Unmarshal([]byte(text), &decoded); err == nil {
				raw = decoded
				break
			}
		}
		raw = skillSplit.Split(text, -1)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = Text(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
