package clean

import (
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reason explains why a row was dropped, as "<column>:<rule>".
type Reason string

func reason(column, rule string) Reason {
	return Reason(column + ":" + rule)
}

const (
	ruleMissing     = "missing"
	ruleNotNumeric  = "not_numeric"
	ruleNotInteger  = "not_integer"
	ruleOutOfSet    = "out_of_set"
	ruleOutOfRange  = "out_of_range"
	ruleZero        = "zero"
	ruleUnparseable = "unparseable"
)

// dateTimeLayouts are tried in order; values without a zone are taken as UTC.
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
}

func parseDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// rowCheck coerces the columns of one row in order and remembers the first failure. Once a
// column has failed the remaining calls are no-ops.
type rowCheck struct {
	failed Reason
}

func (c *rowCheck) ok() bool { return c.failed == "" }

func (c *rowCheck) fail(column, rule string) {
	if c.failed == "" {
		c.failed = reason(column, rule)
	}
}

func (c *rowCheck) present(column string, v sql.NullString) bool {
	if !c.ok() {
		return false
	}
	if !v.Valid {
		c.fail(column, ruleMissing)
		return false
	}
	return true
}

func (c *rowCheck) text(column string, v sql.NullString) string {
	if !c.present(column, v) {
		return ""
	}
	return v.String
}

func (c *rowCheck) number(column string, v sql.NullString) (decimal.Decimal, bool) {
	if !c.present(column, v) {
		return decimal.Zero, false
	}
	s := strings.TrimSpace(v.String)
	if s == "" {
		c.fail(column, ruleMissing)
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		c.fail(column, ruleNotNumeric)
		return decimal.Zero, false
	}
	return d, true
}

// maxInt64Digits is the number of decimal digits in math.MaxInt64.
const maxInt64Digits = 19

func (c *rowCheck) integer(column string, v sql.NullString) int64 {
	d, ok := c.number(column, v)
	if !ok || d.IsZero() {
		return 0
	}
	// Exponents reach the int32 range and rescaling costs time in the exponent, so the digit
	// bounds are checked before IsInteger and BigInt.
	exp, digits := int64(d.Exponent()), int64(d.NumDigits())
	if exp < 0 && -exp >= digits {
		c.fail(column, ruleNotInteger)
		return 0
	}
	if !d.IsInteger() {
		c.fail(column, ruleNotInteger)
		return 0
	}
	if digits+exp > maxInt64Digits {
		c.fail(column, ruleOutOfRange)
		return 0
	}
	n := d.BigInt()
	if !n.IsInt64() {
		c.fail(column, ruleOutOfRange)
		return 0
	}
	return n.Int64()
}

func (c *rowCheck) integerIn(column string, v sql.NullString, set map[int64]bool) int64 {
	n := c.integer(column, v)
	if c.ok() && !set[n] {
		c.fail(column, ruleOutOfSet)
	}
	return n
}

func (c *rowCheck) integerBetween(column string, v sql.NullString, lo, hi int64) int64 {
	n := c.integer(column, v)
	if c.ok() && (n < lo || n > hi) {
		c.fail(column, ruleOutOfRange)
	}
	return n
}

func (c *rowCheck) nonZeroInteger(column string, v sql.NullString) int64 {
	n := c.integer(column, v)
	if c.ok() && n == 0 {
		c.fail(column, ruleZero)
	}
	return n
}

func (c *rowCheck) dateTime(column string, v sql.NullString) time.Time {
	if !c.present(column, v) {
		return time.Time{}
	}
	t, ok := parseDateTime(v.String)
	if !ok {
		c.fail(column, ruleUnparseable)
	}
	return t
}
