package rows

// convert.go provides type conversion for source cells to database values.
//
// These functions handle the messy reality of operator-supplied files:
//   - pandas-style null sentinels ("", "nan", "None", "NaN")
//   - multiple date formats including the 14-char bank timestamp
//   - various boolean spellings (Y/N, Yes/No, 1/0, true/false)
//   - currency symbols and thousands separators in amounts
//
// All ToPg* functions return pgtype values with Valid=false for empty or
// invalid input so the database receives NULLs; in the upstream feeds a
// blank cell means absent, never empty-string.

import (
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// TimestampLayout is the canonical timestamp format written to the database.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the canonical date-only format.
const DateLayout = "2006-01-02"

// numericRegex validates numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// dateLayouts are accepted source date formats, tried in order.
// The 14-char compact layout is what the fixed-width feeds emit.
var dateLayouts = []string{
	TimestampLayout,
	DateLayout,
	"20060102150405",
	"20060102",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
}

// IsNull reports whether a cell carries one of the null sentinels.
func IsNull(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "nan", "NaN", "NAN", "None", "none", "NULL", "null":
		return true
	}
	return false
}

// Clean trims a cell and maps null sentinels to the empty string.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if IsNull(s) {
		return ""
	}
	return s
}

// ParseTime parses a source date or timestamp cell.
func ParseTime(s string) (time.Time, bool) {
	s = Clean(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp rewrites a source date cell to the canonical
// YYYY-MM-DD HH:MM:SS form. Returns "" for null cells and ok=false for
// unparseable ones.
func NormalizeTimestamp(s string) (string, bool) {
	s = Clean(s)
	if s == "" {
		return "", true
	}
	t, ok := ParseTime(s)
	if !ok {
		return "", false
	}
	return t.Format(TimestampLayout), true
}

// ParseDecimal parses an amount or balance cell. Currency symbols, thousands
// separators, and accounting-style parentheses are stripped first.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = Clean(s)
	if s == "" {
		return decimal.Decimal{}, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseBool parses a boolean cell.
// Accepts Y/N, Yes/No, 1/0, true/false, t/f case-insensitively.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(Clean(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}

// ToPgText converts a cell to pgtype.Text, invalid (NULL) for null cells.
func ToPgText(s string) pgtype.Text {
	s = Clean(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgTimestamp converts a cell to pgtype.Timestamp, invalid for null or
// unparseable cells.
func ToPgTimestamp(s string) pgtype.Timestamp {
	t, ok := ParseTime(s)
	if !ok {
		return pgtype.Timestamp{Valid: false}
	}
	return pgtype.Timestamp{Time: t, Valid: true}
}

// ToPgNumeric converts a cell to pgtype.Numeric via decimal parsing.
func ToPgNumeric(s string) pgtype.Numeric {
	d, ok := ParseDecimal(s)
	if !ok {
		return pgtype.Numeric{Valid: false}
	}
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ToPgBool converts a cell to pgtype.Bool.
func ToPgBool(s string) pgtype.Bool {
	b, ok := ParseBool(s)
	if !ok {
		return pgtype.Bool{Valid: false}
	}
	return pgtype.Bool{Bool: b, Valid: true}
}
