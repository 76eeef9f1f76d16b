package quickbooks

// LineDetailKind tags the nested detail shape carried by a transaction line.
type LineDetailKind string

const (
	DetailAccountBasedExpense LineDetailKind = "AccountBasedExpenseLineDetail"
	DetailSalesItem           LineDetailKind = "SalesItemLineDetail"
	DetailJournalEntry        LineDetailKind = "JournalEntryLineDetail"
	DetailDeposit             LineDetailKind = "DepositLineDetail"
	DetailPayment             LineDetailKind = "PaymentLineDetail"
	DetailUnknown             LineDetailKind = "Unknown"
)

// detailKinds is the resolution order; the first key present wins.
var detailKinds = []LineDetailKind{
	DetailAccountBasedExpense,
	DetailSalesItem,
	DetailJournalEntry,
	DetailDeposit,
	DetailPayment,
}

// LineDetail is the flattened view of one line's detail block, resolved once
// per line.
type LineDetail struct {
	Kind           LineDetailKind
	AccountName    string
	AccountID      string
	ClassName      string
	DepartmentName string
	ItemName       string
	TaxCode        string
	BillableStatus string
}

// ResolveLineDetail picks the detail variant present on a raw line map and
// extracts its scalar reference fields. Lines with no recognized detail block
// resolve to DetailUnknown with empty fields rather than being dropped.
func ResolveLineDetail(line map[string]any) LineDetail {
	for _, kind := range detailKinds {
		raw, ok := line[string(kind)]
		if !ok {
			continue
		}
		detail, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		return LineDetail{
			Kind:           kind,
			AccountName:    refField(detail, "AccountRef", "name"),
			AccountID:      refField(detail, "AccountRef", "value"),
			ClassName:      refField(detail, "ClassRef", "name"),
			DepartmentName: refField(detail, "DepartmentRef", "name"),
			ItemName:       refField(detail, "ItemRef", "name"),
			TaxCode:        refField(detail, "TaxCodeRef", "value"),
			BillableStatus: stringField(detail, "BillableStatus"),
		}
	}
	return LineDetail{Kind: DetailUnknown}
}

// RefField reads a nested {name, value} reference off a raw record, e.g.
// CustomerRef.name. Missing or non-object refs yield "".
func RefField(record map[string]any, ref, key string) string {
	return refField(record, ref, key)
}

func refField(m map[string]any, ref, key string) string {
	raw, ok := m[ref]
	if !ok {
		return ""
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	return stringField(obj, key)
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
