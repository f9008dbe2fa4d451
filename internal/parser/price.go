package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var priceToken = regexp.MustCompile(`\d[\d.,]*`)

// ParsePrice extracts a numeric amount from a raw listing price such as
// "45.999,00 TL", "32.999 TL" or "$1,299.99". ok is false when no amount is found.
func ParsePrice(raw string) (amount float64, ok bool) {
	token := priceToken.FindString(raw)
	if token == "" {
		return 0, false
	}
	token = strings.TrimRight(token, ".,")

	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")

	var normalized string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			normalized = strings.ReplaceAll(token, ".", "")
			normalized = strings.Replace(normalized, ",", ".", 1)
		} else {
			normalized = strings.ReplaceAll(token, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(token, ",") == 1 && len(token)-lastComma-1 != 3 {
			normalized = strings.Replace(token, ",", ".", 1)
		} else {
			normalized = strings.ReplaceAll(token, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(token, ".") > 1 || len(token)-lastDot-1 == 3 {
			normalized = strings.ReplaceAll(token, ".", "")
		} else {
			normalized = token
		}
	default:
		normalized = token
	}

	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
