package service

import (
	"fmt"
	"strings"

	"qbsync/internal/client/quickbooks"
	"qbsync/internal/models"
)

// FlattenForUpsert prepares raw upstream records for the pipeline. Reference
// entities pass through as-is (the pipeline drops their nested fields).
// Transaction entities expand one record per line item: header scalars plus
// the resolved line detail, keyed "<TxnId>-<LineId>" so a re-sync merges
// instead of duplicating lines.
func FlattenForUpsert(entity string, records []map[string]any) []map[string]any {
	if !models.IsTransactionEntity(entity) {
		return records
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, flattenTransaction(entity, rec)...)
	}
	return out
}

func flattenTransaction(entity string, rec map[string]any) []map[string]any {
	txnID, _ := rec["Id"].(string)
	if txnID == "" {
		// Pipeline counts the id-less record as dropped.
		return []map[string]any{rec}
	}

	header := map[string]any{
		"TxnType":      entity,
		"Currency":     quickbooks.RefField(rec, "CurrencyRef", "value"),
		"Customer":     quickbooks.RefField(rec, "CustomerRef", "name"),
		"Vendor":       quickbooks.RefField(rec, "VendorRef", "name"),
		"EntityName":   quickbooks.RefField(rec, "EntityRef", "name"),
		"AccountRef":   quickbooks.RefField(rec, "AccountRef", "name"),
		"Memo":         rec["PrivateNote"],
		"DocNumber":    rec["DocNumber"],
		"TxnDate":      rec["TxnDate"],
		"TotalAmt":     rec["TotalAmt"],
		"ExchangeRate": rec["ExchangeRate"],
	}
	if meta, ok := rec["MetaData"].(map[string]any); ok {
		header["CreatedTime"] = meta["CreateTime"]
		header["UpdatedTime"] = meta["LastUpdatedTime"]
	}

	lines, _ := rec["Line"].([]any)
	if len(lines) == 0 {
		row := cloneRow(header)
		row["Id"] = txnID
		return []map[string]any{row}
	}

	out := make([]map[string]any, 0, len(lines))
	for i, rawLine := range lines {
		line, ok := rawLine.(map[string]any)
		if !ok {
			continue
		}
		row := cloneRow(header)
		row["Id"] = txnID + "-" + lineID(line, i)
		row["TxnId"] = txnID
		row["LineAmount"] = line["Amount"]
		row["Description"] = line["Description"]
		row["LinkedTxnIds"] = linkedTxnIDs(line)

		detail := quickbooks.ResolveLineDetail(line)
		row["LineDetailType"] = string(detail.Kind)
		row["AccountName"] = detail.AccountName
		row["AccountId"] = detail.AccountID
		row["Class"] = detail.ClassName
		row["Department"] = detail.DepartmentName
		row["Item"] = detail.ItemName
		row["TaxCode"] = detail.TaxCode
		row["BillableStatus"] = detail.BillableStatus
		out = append(out, row)
	}
	if len(out) == 0 {
		row := cloneRow(header)
		row["Id"] = txnID
		out = append(out, row)
	}
	return out
}

func lineID(line map[string]any, index int) string {
	if id, ok := line["Id"].(string); ok && id != "" {
		return id
	}
	return fmt.Sprintf("L%d", index+1)
}

func linkedTxnIDs(line map[string]any) string {
	raw, ok := line["LinkedTxn"].([]any)
	if !ok || len(raw) == 0 {
		return ""
	}
	ids := make([]string, 0, len(raw))
	for _, lt := range raw {
		obj, ok := lt.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := obj["TxnId"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return strings.Join(ids, ", ")
}

func cloneRow(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+12)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
