package service

import (
	"testing"
)

func TestFlattenForUpsert_ReferencePassThrough(t *testing.T) {
	records := []map[string]any{{"Id": "3", "DisplayName": "Acme"}}
	got := FlattenForUpsert("Customer", records)
	if len(got) != 1 || got[0]["DisplayName"] != "Acme" {
		t.Fatalf("reference records must pass through, got %v", got)
	}
}

func TestFlattenForUpsert_TransactionExpandsPerLine(t *testing.T) {
	records := []map[string]any{{
		"Id":          "101",
		"DocNumber":   "B-7",
		"TotalAmt":    float64(150),
		"PrivateNote": "note",
		"TxnDate":     "2026-02-03",
		"CurrencyRef": map[string]any{"value": "USD"},
		"VendorRef":   map[string]any{"value": "9", "name": "Paper Co"},
		"MetaData":    map[string]any{"CreateTime": "c", "LastUpdatedTime": "u"},
		"Line": []any{
			map[string]any{
				"Id":          "1",
				"Amount":      float64(100),
				"Description": "reams",
				"AccountBasedExpenseLineDetail": map[string]any{
					"AccountRef":     map[string]any{"value": "61", "name": "Supplies"},
					"ClassRef":       map[string]any{"name": "Ops"},
					"BillableStatus": "NotBillable",
				},
				"LinkedTxn": []any{
					map[string]any{"TxnId": "88", "TxnType": "PurchaseOrder"},
					map[string]any{"TxnId": "89"},
				},
			},
			map[string]any{
				"Amount": float64(50),
			},
		},
	}}

	got := FlattenForUpsert("Bill", records)
	if len(got) != 2 {
		t.Fatalf("rows=%d want one per line", len(got))
	}

	first := got[0]
	if first["Id"] != "101-1" {
		t.Fatalf("line key=%v want 101-1", first["Id"])
	}
	if first["TxnId"] != "101" || first["TxnType"] != "Bill" {
		t.Fatalf("header fields missing: %v", first)
	}
	if first["Vendor"] != "Paper Co" || first["Currency"] != "USD" {
		t.Fatalf("refs not resolved: %v", first)
	}
	if first["Memo"] != "note" || first["CreatedTime"] != "c" || first["UpdatedTime"] != "u" {
		t.Fatalf("metadata not mapped: %v", first)
	}
	if first["AccountName"] != "Supplies" || first["Class"] != "Ops" || first["BillableStatus"] != "NotBillable" {
		t.Fatalf("line detail not extracted: %v", first)
	}
	if first["LineDetailType"] != "AccountBasedExpenseLineDetail" {
		t.Fatalf("LineDetailType=%v", first["LineDetailType"])
	}
	if first["LinkedTxnIds"] != "88, 89" {
		t.Fatalf("LinkedTxnIds=%v", first["LinkedTxnIds"])
	}

	// A line without its own Id gets a positional key.
	second := got[1]
	if second["Id"] != "101-L2" {
		t.Fatalf("positional key=%v want 101-L2", second["Id"])
	}
	if second["LineDetailType"] != "Unknown" {
		t.Fatalf("detail kind=%v want Unknown fallback", second["LineDetailType"])
	}
}

func TestFlattenForUpsert_ZeroLineTransactionKeepsHeaderRow(t *testing.T) {
	records := []map[string]any{{"Id": "55", "TotalAmt": float64(10)}}
	got := FlattenForUpsert("Transfer", records)
	if len(got) != 1 {
		t.Fatalf("rows=%d want 1", len(got))
	}
	if got[0]["Id"] != "55" {
		t.Fatalf("header row key=%v want bare txn id", got[0]["Id"])
	}
}

func TestFlattenForUpsert_IdLessTransactionPassedForDropAccounting(t *testing.T) {
	records := []map[string]any{{"TotalAmt": float64(10)}}
	got := FlattenForUpsert("Invoice", records)
	if len(got) != 1 {
		t.Fatalf("rows=%d want 1", len(got))
	}
	if _, ok := got[0]["Id"]; ok {
		t.Fatal("id-less record must stay id-less so the pipeline counts the drop")
	}
}
