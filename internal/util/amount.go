package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyPattern = regexp.MustCompile(`(?i)(cny|rmb|usd|eur|hkd|jpy|gbp|元|人民币|美元|港币|欧元|¥|￥|\$|€|£)`)
	amountPattern   = regexp.MustCompile(`(-?\d{1,3}(?:[\s.,]\d{3})+(?:[.,]\d{1,2})?|-?\d+(?:[.,]\d+)?)`)
	reThousandDot   = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+$`)
	reThousandComma = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+$`)
	reMixedDotComma = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+,\d{1,2}$`)
	reMixedCommaDot = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+\.\d{1,2}$`)
)

type ParsedAmount struct {
	Amount   *float64
	Currency string
}

// ParseAmount pulls the first monetary number and currency marker out of free
// text such as "本期应还 ¥1,234.56" or "USD 19.99".
func ParseAmount(input string) ParsedAmount {
	line := strings.ReplaceAll(input, " ", " ")

	out := ParsedAmount{}
	if m := currencyPattern.FindStringSubmatch(line); len(m) > 1 {
		out.Currency = normalizeCurrency(m[1])
	}

	m := amountPattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return out
	}
	norm := normalizeNumericToken(m[1])
	if parsed, err := strconv.ParseFloat(norm, 64); err == nil {
		out.Amount = FloatPtr(parsed)
	}
	return out
}

func normalizeCurrency(token string) string {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "cny", "rmb", "元", "人民币", "¥", "￥":
		return "CNY"
	case "usd", "美元", "$":
		return "USD"
	case "eur", "欧元", "€":
		return "EUR"
	case "hkd", "港币":
		return "HKD"
	case "gbp", "£":
		return "GBP"
	case "jpy":
		return "JPY"
	default:
		return strings.ToUpper(token)
	}
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	switch {
	case reThousandDot.MatchString(compact):
		return strings.ReplaceAll(compact, ".", "")
	case reThousandComma.MatchString(compact):
		return strings.ReplaceAll(compact, ",", "")
	case reMixedDotComma.MatchString(compact):
		return strings.ReplaceAll(strings.ReplaceAll(compact, ".", ""), ",", ".")
	case reMixedCommaDot.MatchString(compact):
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
