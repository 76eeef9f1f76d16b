package models

import "sort"

// entityTables maps every syncable upstream entity type to its destination
// table. The map doubles as the identifier whitelist: no table name that is
// not a value here is ever interpolated into DDL or a merge statement.
var entityTables = map[string]string{
	// Transactional
	"Invoice":       "qb_invoices",
	"SalesReceipt":  "qb_sales_receipts",
	"Payment":       "qb_payments",
	"CreditMemo":    "qb_credit_memos",
	"RefundReceipt": "qb_refund_receipts",
	"Purchase":      "qb_purchases",
	"Bill":          "qb_bills",
	"BillPayment":   "qb_bill_payments",
	"VendorCredit":  "qb_vendor_credits",
	"Check":         "qb_checks",
	"Deposit":       "qb_deposits",
	"Transfer":      "qb_transfers",
	"JournalEntry":  "qb_journal_entries",
	"TimeActivity":  "qb_time_activities",
	"PurchaseOrder": "qb_purchase_orders",

	// Reference
	"Account":  "qb_accounts",
	"Class":    "qb_classes",
	"Customer": "qb_customers",
	"Employee": "qb_employees",
	"Item":     "qb_items",
	"Vendor":   "qb_vendors",
}

// transactionEntities carry a Line array that is flattened one row per line.
var transactionEntities = map[string]bool{
	"Invoice": true, "SalesReceipt": true, "Payment": true, "CreditMemo": true,
	"RefundReceipt": true, "Purchase": true, "Bill": true, "BillPayment": true,
	"VendorCredit": true, "Check": true, "Deposit": true, "Transfer": true,
	"JournalEntry": true, "TimeActivity": true, "PurchaseOrder": true,
}

// EntityTableFor resolves an entity type to its destination table.
func EntityTableFor(entity string) (string, bool) {
	table, ok := entityTables[entity]
	return table, ok
}

// IsTransactionEntity reports whether records of this entity type are
// flattened per line item.
func IsTransactionEntity(entity string) bool {
	return transactionEntities[entity]
}

// EntityTables returns every destination table, sorted, for schema bootstrap.
func EntityTables() []string {
	out := make([]string, 0, len(entityTables))
	for _, t := range entityTables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
