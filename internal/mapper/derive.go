package mapper

// derive.go applies the per-kind derivations for fixed-width files: fields
// the downstream schema needs that the upstream layouts only carry
// implicitly (name parts, customer type, biller identities, debit/credit
// sign, normalized timestamps).

import (
	"strings"
	"time"

	"github.com/bliinkai/ingest/internal/rows"
)

// entityIDSuffixes are the known natural-id suffixes, checked in order.
// CUSWBP marks a consumer; every other suffix marks a business or
// related-party variant.
var entityIDSuffixes = []string{"CUSWBP", "TIDWBP", "AIDWBP", "GRPWBP", "OWNWBP", "CHNWBP"}

// CustomerTypeConsumer and CustomerTypeBusiness are the two values the
// entity loader dispatches on.
const (
	CustomerTypeConsumer = "Consumer"
	CustomerTypeBusiness = "Business"
)

// documentTypes maps the 1-character upstream document codes to the
// descriptive strings stored in entity_identifier.
var documentTypes = map[string]string{
	"A": "Passport",
	"B": "National ID Card",
	"C": "Driving License",
	"D": "Social Security Number",
	"E": "Alien Registration Card",
	"F": "Tax Identification Number",
	"L": "Business License",
	"M": "Military ID",
}

// accountIDSuffix marks a fixed-width account natural id.
const accountIDSuffix = "BAWBP"

// accountNumberOffset: the stripped account id embeds the institution
// prefix in its first 15 characters; the account number is the rest.
const accountNumberOffset = 15

// StripEntitySuffix removes a known suffix from a natural entity id and
// reports which suffix was found ("" when none).
func StripEntitySuffix(id string) (string, string) {
	for _, suffix := range entityIDSuffixes {
		if strings.HasSuffix(id, suffix) {
			return strings.TrimSuffix(id, suffix), suffix
		}
	}
	return id, ""
}

// CustomerTypeForSuffix infers the customer type from a natural-id suffix.
func CustomerTypeForSuffix(suffix string) string {
	if suffix == "CUSWBP" {
		return CustomerTypeConsumer
	}
	return CustomerTypeBusiness
}

// SplitName splits a full name into (first, last) on whitespace: first
// token, then the remainder.
func SplitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// SplitAgentName splits an agent display name on comma first ("Last, First"
// style), falling back to whitespace.
func SplitAgentName(full string) (string, string) {
	if i := strings.Index(full, ","); i >= 0 {
		last := strings.TrimSpace(full[:i])
		first := strings.TrimSpace(full[i+1:])
		return first, last
	}
	return SplitName(full)
}

// DeriveCustomer applies the customer fixed-width derivations in place:
//   - customer_name split into first_name / last_name
//   - nationality code 00 translated to US
//   - document_type code expanded to its descriptive string
//   - customer_type inferred from the natural-id suffix
//   - the suffix stripped from customer_id
func DeriveCustomer(t *rows.Table) {
	for _, col := range []string{"first_name", "last_name", "customer_type"} {
		t.EnsureColumn(col)
	}

	for i := 0; i < t.Len(); i++ {
		first, last := SplitName(t.Get(i, "customer_name"))
		t.Set(i, "first_name", first)
		t.Set(i, "last_name", last)

		if t.Get(i, "nationality") == "00" {
			t.Set(i, "nationality", "US")
		}

		if desc, ok := documentTypes[t.Get(i, "document_type")]; ok {
			t.Set(i, "document_type", desc)
		}

		stripped, suffix := StripEntitySuffix(t.Get(i, "customer_id"))
		t.Set(i, "customer_id", stripped)
		t.Set(i, "customer_type", CustomerTypeForSuffix(suffix))
	}
}

// DeriveAccount applies the account fixed-width derivations in place:
//   - account_number taken from the BAWBP-stripped id past the institution
//     prefix
//   - a biller identity synthesized so the account has a resolvable owner
//     (customer_id = natural account id, entity_type = Biller)
func DeriveAccount(t *rows.Table) {
	for _, col := range []string{"account_number", "customer_id", "entity_type"} {
		t.EnsureColumn(col)
	}

	for i := 0; i < t.Len(); i++ {
		rawID := t.Get(i, "account_id")
		stripped := strings.TrimSuffix(rawID, accountIDSuffix)

		number := ""
		if len(stripped) > accountNumberOffset {
			number = stripped[accountNumberOffset:]
		}
		t.Set(i, "account_number", number)

		t.Set(i, "customer_id", rawID)
		t.Set(i, "entity_type", "Biller")
	}
}

// DeriveTransaction applies the transaction fixed-width derivations in
// place and returns the count of future-dated rows (relative to now). The
// count is a warning for the operator; future-dated rows still load.
//   - debit_credit_indicator recomputed from the amount sign
//   - 14-char timestamps rewritten to YYYY-MM-DD HH:MM:SS
func DeriveTransaction(t *rows.Table, now time.Time) int {
	future := 0

	for i := 0; i < t.Len(); i++ {
		if amt, ok := rows.ParseDecimal(t.Get(i, "amount")); ok {
			if amt.IsPositive() {
				t.Set(i, "debit_credit_indicator", "C")
			} else {
				t.Set(i, "debit_credit_indicator", "D")
			}
		}

		raw := t.Get(i, "transaction_date")
		if ts, ok := rows.NormalizeTimestamp(raw); ok && ts != "" {
			t.Set(i, "transaction_date", ts)
			if parsed, ok := rows.ParseTime(ts); ok && parsed.After(now) {
				future++
			}
		}
	}

	return future
}
