package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestUpsert_ScalarFieldsOnlyAndIdBecomesKey(t *testing.T) {
	repo := newStubRepo()
	p := &UpsertPipeline{Store: repo}

	records := []map[string]any{
		{
			"Id":          "42",
			"DocNumber":   "INV-1001",
			"TotalAmt":    json.Number("1234567.89"),
			"Balance":     float64(0),
			"Taxable":     true,
			"PrivateNote": nil,
			"CustomerRef": map[string]any{"value": "7", "name": "Acme"},
			"Line":        []any{map[string]any{"Amount": 1.0}},
		},
	}
	stats, err := p.Upsert(context.Background(), "Customer", 1, records)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Upserted != 1 || stats.Dropped != 0 || stats.Failed != 0 {
		t.Fatalf("stats=%+v", stats)
	}

	row := repo.rows["qb_customers"][mergeKey(1, "42")]
	if row == nil {
		t.Fatal("row not merged under (tenant, qb_id)")
	}
	if _, ok := row["Id"]; ok {
		t.Fatal("Id must not survive as a payload column")
	}
	if row["TotalAmt"] != "1234567.89" {
		t.Fatalf("TotalAmt=%q, numeric fidelity lost", row["TotalAmt"])
	}
	if row["Taxable"] != "true" || row["DocNumber"] != "INV-1001" {
		t.Fatalf("scalar render wrong: %+v", row)
	}
	if _, ok := row["CustomerRef"]; ok {
		t.Fatal("nested object persisted")
	}
	if _, ok := row["Line"]; ok {
		t.Fatal("array persisted")
	}
}

func TestUpsert_MissingIdDropped(t *testing.T) {
	repo := newStubRepo()
	p := &UpsertPipeline{Store: repo}

	stats, err := p.Upsert(context.Background(), "Invoice", 1, []map[string]any{
		{"DocNumber": "no-id"},
		{"Id": "", "DocNumber": "empty-id"},
		{"Id": "9"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Dropped != 2 || stats.Upserted != 1 {
		t.Fatalf("stats=%+v want 2 dropped 1 upserted", stats)
	}
}

func TestUpsert_UnknownEntityRejected(t *testing.T) {
	p := &UpsertPipeline{Store: newStubRepo()}
	if _, err := p.Upsert(context.Background(), "Robert'); DROP TABLE", 1, []map[string]any{{"Id": "1"}}); err == nil {
		t.Fatal("unknown entity accepted")
	}
}

func TestUpsert_RecordFailureIsCountedNotFatal(t *testing.T) {
	repo := newStubRepo()
	repo.failMergeQBIDs = map[string]bool{"bad": true}
	p := &UpsertPipeline{Store: repo}

	stats, err := p.Upsert(context.Background(), "Invoice", 1, []map[string]any{
		{"Id": "bad", "DocNumber": "x"},
		{"Id": "good", "DocNumber": "y"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Failed != 1 || stats.Upserted != 1 {
		t.Fatalf("stats=%+v want 1 failed 1 upserted", stats)
	}
}

func TestUpsert_IdempotentReMerge(t *testing.T) {
	repo := newStubRepo()
	p := &UpsertPipeline{Store: repo}
	rec := []map[string]any{{"Id": "5", "DocNumber": "A", "TotalAmt": json.Number("10")}}

	for i := 0; i < 2; i++ {
		if _, err := p.Upsert(context.Background(), "Bill", 3, rec); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	if len(repo.rows["qb_bills"]) != 1 {
		t.Fatalf("rows=%d want 1 after re-merge", len(repo.rows["qb_bills"]))
	}
}

func TestReconcileColumns_RetriesOnceAgainstFreshSnapshot(t *testing.T) {
	repo := newStubRepo()
	repo.addColumnErr = errors.New("stub: concurrent alter")
	p := &UpsertPipeline{Store: repo}

	stats, err := p.Upsert(context.Background(), "Invoice", 1, []map[string]any{
		{"Id": "1", "DocNumber": "A"},
	})
	if err != nil {
		t.Fatalf("Upsert after transient alter failure: %v", err)
	}
	if stats.Upserted != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	if _, ok := repo.columns["qb_invoices"]["DocNumber"]; !ok {
		t.Fatal("column not added on retry")
	}
}

func TestFlattenScalars_ReservedNamesSkipped(t *testing.T) {
	got := flattenScalars(map[string]any{
		"tenant_id": "evil",
		"qb_id":     "evil",
		"synced_at": "evil",
		"Memo":      "fine",
	})
	if len(got) != 1 {
		t.Fatalf("fields=%v, reserved names must not pass through", got)
	}
	if v := got["Memo"]; v == nil || *v != "fine" {
		t.Fatalf("Memo=%v", v)
	}
}

func TestSanitizeColumn(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"DocNumber", "DocNumber"},
		{"Total Amt", "TotalAmt"},
		{"weird;--drop", "weirddrop"},
		{"1099Box", "_1099Box"},
		{"日本語", ""},
		{strings.Repeat("a", 80), strings.Repeat("a", 63)},
	}
	for _, tc := range cases {
		if got := sanitizeColumn(tc.in); got != tc.want {
			t.Errorf("sanitizeColumn(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderNumber(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"1234567.89", "1234567.89"},
		{"1e3", "1000"},
		{"0.10", "0.1"},
		{"-42", "-42"},
	}
	for _, tc := range cases {
		if got := renderNumber(json.Number(tc.in)); got != tc.want {
			t.Errorf("renderNumber(%s)=%s want %s", tc.in, got, tc.want)
		}
	}
}
