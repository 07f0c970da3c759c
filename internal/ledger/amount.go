package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount reads an amount the model produced: a JSON number, or a
// string with currency symbols, thousands separators, a leading minus or
// accounting parentheses. Empty values and placeholders without a single
// digit ("N/A", "none", "-") read as zero.
func ParseAmount(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case decimal.Decimal:
		return t, nil
	case string:
		return parseAmountString(t)
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
	}
}

func parseAmountString(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if !strings.ContainsAny(s, "0123456789") {
		return decimal.Zero, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.':
			b.WriteRune(r)
		case r == '-' || r == '−':
			negative = true
		}
	}
	d, err := decimal.NewFromString(normalizeSeparators(b.String()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// parseCellAmount reads an amount typed into a ledger cell. Unlike model
// output, a non-empty value without digits is a typo, not a placeholder.
func parseCellAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s != "" && !strings.ContainsAny(s, "0123456789") {
		return decimal.Zero, fmt.Errorf("no digits in amount %q", raw)
	}
	return parseAmountString(s)
}

// normalizeSeparators decides which of ',' and '.' is the decimal mark and
// drops the thousands separators.
func normalizeSeparators(s string) string {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")

	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		idx := strings.Index(s, ",")
		if len(s)-idx-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case dots == 1:
		idx := strings.Index(s, ".")
		intPart := strings.TrimLeft(s[:idx], "0")
		if len(s)-idx-1 == 3 && intPart != "" && len(intPart) <= 3 {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

// ParseUserAmount reads a balance typed by a user: a plain decimal with
// optional thousands separators and spaces.
func ParseUserAmount(s string) (decimal.Decimal, error) {
	clean := strings.NewReplacer(",", "", " ", "", "_", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return decimal.Zero, &InputError{Field: "opening_balance", Err: fmt.Errorf("empty value")}
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, &InputError{Field: "opening_balance", Err: err}
	}
	return d, nil
}

// FormatAmount renders an amount with thousands separators, dropping a
// zero fractional part: 1300000 -> "1,300,000", 12.5 -> "12.50".
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, frac = s[:idx], s[idx:]
	}
	if frac == ".00" {
		frac = ""
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}
