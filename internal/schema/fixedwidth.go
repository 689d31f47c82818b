// Package schema declares the fixed-width record layouts for the four
// upstream file families and the expected delimited headers per kind.
//
// Layouts are declared as ordered field tables; positions are derived from
// the declaration order at init time so a layout change touches exactly one
// place. The derived total widths are pinned by constants and verified in
// tests.
package schema

import (
	"fmt"

	"github.com/bliinkai/ingest/internal/rows"
)

// FieldFormat is the value format carried by a fixed-width field.
type FieldFormat int

const (
	FormatText FieldFormat = iota
	FormatNumeric
	FormatDate      // YYYYMMDD
	FormatTimestamp // YYYYMMDDHHMMSS
	FormatFlag      // single-character code
)

// Field is one column of a fixed-width record.
// Position is 1-based and derived from declaration order.
type Field struct {
	Name      string
	Position  int
	Size      int
	Format    FieldFormat
	Canonical string
}

// Schema is an immutable ordered sequence of fixed-width fields.
type Schema struct {
	Kind   rows.Kind
	Fields []Field
	width  int
}

// TotalLength returns the record width: max(position-1+size) over all fields.
func (s *Schema) TotalLength() int {
	return s.width
}

// Canonicals returns the canonical column names in field order.
func (s *Schema) Canonicals() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Canonical
	}
	return out
}

// Record widths pinned by the upstream interface documents.
const (
	CustomerRecordWidth     = 1065
	AccountRecordWidth      = 542
	TransactionRecordWidth  = 2538
	RelationshipRecordWidth = 144
)

// newSchema assigns positions cumulatively and computes the record width.
func newSchema(kind rows.Kind, fields []Field) *Schema {
	pos := 1
	for i := range fields {
		fields[i].Position = pos
		pos += fields[i].Size
	}
	return &Schema{Kind: kind, Fields: fields, width: pos - 1}
}

// Customer is the CUSTOMER_* record layout.
var Customer = newSchema(rows.KindCustomer, []Field{
	{Name: "Customer_Id", Size: 35, Format: FormatText, Canonical: "customer_id"},
	{Name: "Customer_Name", Size: 140, Format: FormatText, Canonical: "customer_name"},
	{Name: "Date_Of_Birth", Size: 8, Format: FormatDate, Canonical: "date_of_birth"},
	{Name: "Nationality", Size: 2, Format: FormatText, Canonical: "nationality"},
	{Name: "Residence_Country", Size: 2, Format: FormatText, Canonical: "residence_country"},
	{Name: "Document_Type", Size: 1, Format: FormatFlag, Canonical: "document_type"},
	{Name: "Document_Number", Size: 35, Format: FormatText, Canonical: "document_number"},
	{Name: "Document_Issue_Country", Size: 2, Format: FormatText, Canonical: "document_issue_country"},
	{Name: "Customer_Segment", Size: 10, Format: FormatText, Canonical: "customer_segment"},
	{Name: "Risk_Score", Size: 5, Format: FormatNumeric, Canonical: "risk_score"},
	{Name: "Occupation", Size: 34, Format: FormatText, Canonical: "occupation"},
	{Name: "Employer_Name", Size: 120, Format: FormatText, Canonical: "employer_name"},
	{Name: "Address_Line_1", Size: 100, Format: FormatText, Canonical: "address_line_1"},
	{Name: "Address_Line_2", Size: 100, Format: FormatText, Canonical: "address_line_2"},
	{Name: "City", Size: 50, Format: FormatText, Canonical: "city"},
	{Name: "State", Size: 30, Format: FormatText, Canonical: "state"},
	{Name: "Postal_Code", Size: 10, Format: FormatText, Canonical: "postal_code"},
	{Name: "Country", Size: 2, Format: FormatText, Canonical: "country"},
	{Name: "Phone_Number", Size: 20, Format: FormatText, Canonical: "phone_number"},
	{Name: "Mobile_Number", Size: 20, Format: FormatText, Canonical: "mobile_number"},
	{Name: "Email", Size: 100, Format: FormatText, Canonical: "email"},
	{Name: "Account_Officer", Size: 35, Format: FormatText, Canonical: "account_officer"},
	{Name: "Branch_Code", Size: 10, Format: FormatText, Canonical: "branch_code"},
	{Name: "Open_Date", Size: 8, Format: FormatDate, Canonical: "open_date"},
	{Name: "Closed_Date", Size: 8, Format: FormatDate, Canonical: "closed_date"},
	{Name: "Closed_Reason", Size: 60, Format: FormatText, Canonical: "closed_reason"},
	{Name: "Gender", Size: 1, Format: FormatFlag, Canonical: "gender"},
	{Name: "Marital_Status", Size: 1, Format: FormatFlag, Canonical: "marital_status"},
	{Name: "Annual_Income", Size: 15, Format: FormatNumeric, Canonical: "annual_income"},
	{Name: "Source_Of_Funds", Size: 40, Format: FormatText, Canonical: "source_of_funds"},
	{Name: "Pep_Flag", Size: 1, Format: FormatFlag, Canonical: "pep_flag"},
	{Name: "Tax_Id", Size: 20, Format: FormatText, Canonical: "tax_id"},
	{Name: "Industry_Code", Size: 10, Format: FormatText, Canonical: "industry_code"},
	{Name: "Business_Registration_Number", Size: 20, Format: FormatText, Canonical: "business_registration_number"},
	{Name: "Incorporation_Date", Size: 8, Format: FormatDate, Canonical: "incorporation_date"},
	{Name: "Incorporation_Country", Size: 2, Format: FormatText, Canonical: "incorporation_country"},
})

// Account is the ACCOUNT_* record layout.
var Account = newSchema(rows.KindAccount, []Field{
	{Name: "Account_Id", Size: 35, Format: FormatText, Canonical: "account_id"},
	{Name: "Account_Holder_Name", Size: 240, Format: FormatText, Canonical: "account_holder_name"},
	{Name: "Account_Type", Size: 40, Format: FormatText, Canonical: "account_type"},
	{Name: "Account_Status", Size: 10, Format: FormatText, Canonical: "account_status"},
	{Name: "Currency", Size: 3, Format: FormatText, Canonical: "currency"},
	{Name: "Open_Date", Size: 8, Format: FormatDate, Canonical: "open_date"},
	{Name: "Closed_Date", Size: 8, Format: FormatDate, Canonical: "closed_date"},
	{Name: "Branch_Code", Size: 10, Format: FormatText, Canonical: "branch_code"},
	{Name: "Balance", Size: 18, Format: FormatNumeric, Canonical: "balance"},
	{Name: "Eod_Balance", Size: 18, Format: FormatNumeric, Canonical: "eod_balance"},
	{Name: "Product_Code", Size: 40, Format: FormatText, Canonical: "product_code"},
	{Name: "Interest_Rate", Size: 8, Format: FormatNumeric, Canonical: "interest_rate"},
	{Name: "Overdraft_Limit", Size: 18, Format: FormatNumeric, Canonical: "overdraft_limit"},
	{Name: "Statement_Frequency", Size: 10, Format: FormatText, Canonical: "statement_frequency"},
	{Name: "Last_Activity_Date", Size: 8, Format: FormatDate, Canonical: "last_activity_date"},
	{Name: "Account_Officer", Size: 68, Format: FormatText, Canonical: "account_officer"},
})

// Transaction is the TRANSACTION_* record layout, the widest of the four.
var Transaction = newSchema(rows.KindTransaction, []Field{
	{Name: "Transaction_Id", Size: 35, Format: FormatText, Canonical: "transaction_id"},
	{Name: "Account_Id", Size: 35, Format: FormatText, Canonical: "account_id"},
	{Name: "Transaction_Date", Size: 14, Format: FormatTimestamp, Canonical: "transaction_date"},
	{Name: "Amount", Size: 18, Format: FormatNumeric, Canonical: "amount"},
	{Name: "Currency", Size: 3, Format: FormatText, Canonical: "currency"},
	{Name: "Debit_Credit_Indicator", Size: 1, Format: FormatFlag, Canonical: "debit_credit_indicator"},
	{Name: "Transaction_Type", Size: 20, Format: FormatText, Canonical: "transaction_type"},
	{Name: "Transaction_Channel", Size: 20, Format: FormatText, Canonical: "transaction_channel"},
	{Name: "Counterparty_Account", Size: 35, Format: FormatText, Canonical: "counterparty_account"},
	{Name: "Counterparty_Name", Size: 140, Format: FormatText, Canonical: "counterparty_name"},
	{Name: "Counterparty_Bank_Code", Size: 20, Format: FormatText, Canonical: "counterparty_bank_code"},
	{Name: "Beneficiary_Bank", Size: 35, Format: FormatText, Canonical: "beneficiary_bank"},
	{Name: "Intermediary_Bank", Size: 35, Format: FormatText, Canonical: "intermediary_bank"},
	{Name: "Intermediary_1_Id", Size: 35, Format: FormatText, Canonical: "intermediary_1_id"},
	{Name: "Transaction_Field_15", Size: 140, Format: FormatText, Canonical: "transaction_field_15"},
	{Name: "Originator_Account", Size: 35, Format: FormatText, Canonical: "originator_account"},
	{Name: "Originator_Name", Size: 140, Format: FormatText, Canonical: "originator_name"},
	{Name: "Originator_Bank", Size: 35, Format: FormatText, Canonical: "originator_bank"},
	{Name: "Purpose_Code", Size: 10, Format: FormatText, Canonical: "purpose_code"},
	{Name: "Narrative", Size: 200, Format: FormatText, Canonical: "narrative"},
	{Name: "Reference_Number", Size: 35, Format: FormatText, Canonical: "reference_number"},
	{Name: "Value_Date", Size: 8, Format: FormatDate, Canonical: "value_date"},
	{Name: "Posting_Date", Size: 8, Format: FormatDate, Canonical: "posting_date"},
	{Name: "Branch_Code", Size: 10, Format: FormatText, Canonical: "branch_code"},
	{Name: "Teller_Id", Size: 10, Format: FormatText, Canonical: "teller_id"},
	{Name: "Batch_Number", Size: 10, Format: FormatText, Canonical: "batch_number"},
	{Name: "Check_Number", Size: 20, Format: FormatText, Canonical: "check_number"},
	{Name: "Exchange_Rate", Size: 12, Format: FormatNumeric, Canonical: "exchange_rate"},
	{Name: "Original_Amount", Size: 18, Format: FormatNumeric, Canonical: "original_amount"},
	{Name: "Original_Currency", Size: 3, Format: FormatText, Canonical: "original_currency"},
	{Name: "Fee_Amount", Size: 18, Format: FormatNumeric, Canonical: "fee_amount"},
	{Name: "Tax_Amount", Size: 18, Format: FormatNumeric, Canonical: "tax_amount"},
	{Name: "Merchant_Category_Code", Size: 4, Format: FormatText, Canonical: "merchant_category_code"},
	{Name: "Merchant_Name", Size: 140, Format: FormatText, Canonical: "merchant_name"},
	{Name: "Merchant_Country", Size: 2, Format: FormatText, Canonical: "merchant_country"},
	{Name: "Terminal_Id", Size: 16, Format: FormatText, Canonical: "terminal_id"},
	{Name: "Card_Number_Masked", Size: 19, Format: FormatText, Canonical: "card_number_masked"},
	{Name: "Auth_Code", Size: 6, Format: FormatText, Canonical: "auth_code"},
	{Name: "Device_Id", Size: 40, Format: FormatText, Canonical: "device_id"},
	{Name: "Ip_Address", Size: 39, Format: FormatText, Canonical: "ip_address"},
	{Name: "Location", Size: 100, Format: FormatText, Canonical: "location"},
	{Name: "Beneficiary_Account", Size: 35, Format: FormatText, Canonical: "beneficiary_account"},
	{Name: "Beneficiary_Name", Size: 140, Format: FormatText, Canonical: "beneficiary_name"},
	{Name: "Ordering_Institution", Size: 140, Format: FormatText, Canonical: "ordering_institution"},
	{Name: "Instruction_Code", Size: 10, Format: FormatText, Canonical: "instruction_code"},
	{Name: "Regulatory_Reporting", Size: 200, Format: FormatText, Canonical: "regulatory_reporting"},
	{Name: "Filler", Size: 471, Format: FormatText, Canonical: "filler"},
})

// Relationship is the RELATIONSHIP_* record layout.
var Relationship = newSchema(rows.KindRelationship, []Field{
	{Name: "From_Id", Size: 54, Format: FormatText, Canonical: "from_id"},
	{Name: "To_Id", Size: 54, Format: FormatText, Canonical: "to_id"},
	{Name: "Role_Type", Size: 8, Format: FormatText, Canonical: "role_type"},
	{Name: "Start_Date", Size: 14, Format: FormatTimestamp, Canonical: "start_date"},
	{Name: "End_Date", Size: 14, Format: FormatTimestamp, Canonical: "end_date"},
})

// ByKind returns the fixed-width schema for a record family.
// The list family has no fixed-width layout.
func ByKind(kind rows.Kind) (*Schema, error) {
	switch kind {
	case rows.KindCustomer:
		return Customer, nil
	case rows.KindAccount:
		return Account, nil
	case rows.KindTransaction:
		return Transaction, nil
	case rows.KindRelationship:
		return Relationship, nil
	}
	return nil, fmt.Errorf("no fixed-width schema for kind %q", kind)
}
