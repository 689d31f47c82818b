package schema

// delimited.go declares the canonical column sets for the delimited file
// families. Delimited files carry a changetype column and are mapped onto
// these canonicals by operator mapping or header auto-match.

import "github.com/bliinkai/ingest/internal/rows"

// DelimitedColumns lists the canonical columns accepted per kind.
// The first columns of each list are the required set (see Required).
var DelimitedColumns = map[rows.Kind][]string{
	rows.KindCustomer: {
		"changetype", "customer_id", "customer_type",
		"first_name", "last_name", "customer_name", "date_of_birth",
		"nationality", "residence_country", "document_type", "document_number",
		"risk_score", "occupation", "employer_name",
		"address_line_1", "address_line_2", "city", "state", "postal_code", "country",
		"phone_number", "email", "open_date", "closed_date", "closed_reason",
		"business_type", "business_activity", "industry_code", "tax_id",
	},
	rows.KindAccount: {
		"changetype", "account_id", "customer_id", "account_number",
		"account_holder_name", "account_type", "account_status", "currency",
		"open_date", "closed_date", "branch_code", "balance", "eod_balance",
	},
	rows.KindTransaction: {
		"changetype", "transaction_id", "account_id", "transaction_date",
		"amount", "counterparty_account",
		"currency", "debit_credit_indicator", "transaction_type",
		"transaction_channel", "counterparty_name", "beneficiary_bank",
		"intermediary_bank", "intermediary_1_id", "transaction_field_15",
		"originator_account", "originator_name", "originator_bank",
		"purpose_code", "narrative", "reference_number",
	},
	rows.KindRelationship: {
		"from_id", "to_id", "role_type", "start_date", "end_date", "changetype",
	},
	rows.KindList: {
		"entity_type", "category", "risk_score", "risk_level",
		"information_type", "information_value", "list_type", "added_by", "source",
		"list_name", "notes", "industry_code", "country", "payment_channel",
	},
}

// Required lists the columns that must be present and non-empty per kind.
var Required = map[rows.Kind][]string{
	rows.KindCustomer:     {"changetype", "customer_id", "customer_type"},
	rows.KindAccount:      {"changetype", "account_id", "customer_id", "account_number"},
	rows.KindTransaction:  {"changetype", "transaction_id", "account_id", "transaction_date", "amount", "counterparty_account"},
	rows.KindRelationship: {"from_id", "to_id"},
	rows.KindList: {
		"entity_type", "category", "risk_score", "risk_level",
		"information_type", "information_value", "list_type", "added_by", "source",
	},
}

// RoleTypes is the closed set accepted in relationship_stream.role_type.
var RoleTypes = []string{
	"ACH", "BEN", "TRA", "AID", "OWN", "COR", "TML",
	"CHN", "TAID", "TCUS", "TACC", "ACHN", "AGT",
}

// RiskLevels is the closed set accepted in list risk_level.
var RiskLevels = []string{"low", "medium", "high", "critical"}

// ListTypes is the closed set accepted in platform_list_items.list_type.
var ListTypes = []string{"whitelist", "blacklist", "watchlist", "odfi_suspicious", "rdfi_suspicious"}

// ListEntityTypes is the closed set accepted in list entity_type.
var ListEntityTypes = []string{"Individual", "Organisation"}
