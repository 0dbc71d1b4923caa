package slipverify

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

// AmountTolerance is the accepted difference between the slip and the expected amount.
const AmountTolerance = 1.0

// Expectation is what a slip for a given payment should show.
type Expectation struct {
	Amount          float64
	NotBefore       time.Time
	NotAfter        time.Time
	ReceiverAccount string
	ReceiverName    string
}

// Check compares a read slip with exp and returns the discrepancies. Empty means it matches.
func Check(r *Result, exp Expectation) []string {
	var issues []string
	if math.Abs(r.Amount-exp.Amount) > AmountTolerance {
		issues = append(issues, fmt.Sprintf("amount mismatch: expected %.2f, slip shows %.2f", exp.Amount, r.Amount))
	}
	switch {
	case r.Date.IsZero():
		issues = append(issues, "transfer date missing")
	case !exp.NotBefore.IsZero() && r.Date.Before(exp.NotBefore):
		issues = append(issues, "transfer date is before the payment was created")
	case !exp.NotAfter.IsZero() && r.Date.After(exp.NotAfter):
		issues = append(issues, "transfer date is in the future")
	}
	if exp.ReceiverAccount != "" &&
		!AccountMatches(exp.ReceiverAccount, r.ReceiverAccount) &&
		!AccountMatches(exp.ReceiverAccount, r.ReceiverProxy) {
		issues = append(issues, "receiver account does not match")
	}
	if exp.ReceiverName != "" && !NameMatches(exp.ReceiverName, r.ReceiverName) {
		issues = append(issues, "receiver name does not match")
	}
	return issues
}

// AccountMatches compares an expected account number with one printed on a slip. Slips
// usually mask digits with x, which match any digit; separators are ignored.
func AccountMatches(expected, printed string) bool {
	want := digits(expected)
	got := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r):
			return r
		case r == 'x' || r == 'X' || r == '*':
			return 'x'
		}
		return -1
	}, printed)
	if want == "" || got == "" || !strings.ContainsAny(got, "0123456789") {
		return false
	}
	if len(got) != len(want) {
		// Some banks print only the trailing digits.
		return !strings.Contains(got, "x") && strings.HasSuffix(want, got) && len(got) >= 4
	}
	for i := range want {
		if got[i] != 'x' && got[i] != want[i] {
			return false
		}
	}
	return true
}

// NameMatches reports whether either name contains the other, ignoring case, spacing and
// common titles.
func NameMatches(expected, printed string) bool {
	a, b := normalizeName(expected), normalizeName(printed)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

var titles = []string{"mr.", "mrs.", "ms.", "miss", "นาย", "นางสาว", "นาง", "น.ส.", "บจก.", "บริษัท"}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range titles {
		if strings.HasPrefix(s, t) {
			s = strings.TrimSpace(strings.TrimPrefix(s, t))
			break
		}
	}
	return strings.Join(strings.Fields(s), "")
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
