package discover

import (
	"strconv"
	"strings"
	"time"
)

// dateLayout is the only accepted date form; anything with a clock must
// match a datetime layout instead so date never shadows datetime.
const dateLayout = "2006-01-02"

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// InferType runs hypothesis elimination over the sampled values. Candidates
// are tested in a fixed priority order and the first one every sample
// satisfies wins; no samples, or no surviving hypothesis, means string.
func InferType(samples []string) ValueType {
	vals := make([]string, 0, len(samples))
	for _, s := range samples {
		if t := strings.TrimSpace(s); t != "" {
			vals = append(vals, t)
		}
	}
	if len(vals) == 0 {
		return TypeString
	}

	allInt, allDec, allBool, allDate, allTS := true, true, true, true, true
	for _, v := range vals {
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allDec && !isDecimal(v) {
			allDec = false
		}
		if allBool && !isBoolLiteral(v) {
			allBool = false
		}
		if allDate && !isDate(v) {
			allDate = false
		}
		if allTS && !isDateTime(v) {
			allTS = false
		}
		if !allInt && !allDec && !allBool && !allDate && !allTS {
			return TypeString
		}
	}

	switch {
	case allInt:
		return TypeInteger
	case allDec:
		return TypeDecimal
	case allBool:
		return TypeBoolean
	case allDate:
		return TypeDate
	case allTS:
		return TypeDateTime
	}
	return TypeString
}

func isDecimal(v string) bool {
	// Comma decimal separators appear in exported data; accept both.
	v = strings.Replace(v, ",", ".", 1)
	if strings.ContainsAny(v, "eE") {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

func isBoolLiteral(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "1", "0", "y", "n":
		return true
	}
	return false
}

func isDate(v string) bool {
	_, err := time.Parse(dateLayout, v)
	return err == nil
}

func isDateTime(v string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
