package util

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		want     float64
		currency string
	}{
		{name: "yuan with thousands", input: "本期应还 ¥1,234.56", want: 1234.56, currency: "CNY"},
		{name: "plain dollars", input: "USD 19.99", want: 19.99, currency: "USD"},
		{name: "decimal comma", input: "12,5 €", want: 12.5, currency: "EUR"},
		{name: "european thousands", input: "1.234,50 EUR", want: 1234.5, currency: "EUR"},
		{name: "integer yuan", input: "300元", want: 300, currency: "CNY"},
		{name: "bare number", input: "88", want: 88, currency: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseAmount(tc.input)
			if parsed.Amount == nil {
				t.Fatalf("amount is nil")
			}
			if *parsed.Amount != tc.want {
				t.Fatalf("got %v want %v", *parsed.Amount, tc.want)
			}
			if parsed.Currency != tc.currency {
				t.Fatalf("currency got %q want %q", parsed.Currency, tc.currency)
			}
		})
	}
}

func TestParseAmountNoNumber(t *testing.T) {
	if got := ParseAmount("账单已出"); got.Amount != nil {
		t.Fatalf("expected nil amount, got %v", *got.Amount)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := Truncate("论文已接收请确认校样", 4); got != "论文已接" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("short", 20); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}
