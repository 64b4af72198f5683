package vault

import (
	"encoding/base64"
	"encoding/csv"
	"strings"
	"testing"
)

func testReceipt(id string, createdAt int64, grossDollars int64) *RedemptionReceipt {
	return &RedemptionReceipt{
		ReceiptID:   id,
		RoundID:     1,
		Wallet:      testAddr(0x02),
		InputToken:  testAddr(0x0c),
		OutputToken: testAddr(0x0b),
		InputAmount: usd(grossDollars * 10),
		FeeAmount:   usd(grossDollars / 10),
		NetAmount:   usd(grossDollars*10 - grossDollars/10),
		GrossUsd:    usd(grossDollars),
		NetUsd:      usd(grossDollars - grossDollars/100),
		BurnMode:    string(BurnModeSunk),
		CreatedAt:   createdAt,
	}
}

func TestLedgerSequenceAndRoundtrip(t *testing.T) {
	ledger := NewRedemptionLedger(newMockStorage())

	first, err := ledger.NextID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	second, err := ledger.NextID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if first != "rd-1" || second != "rd-2" {
		t.Fatalf("ids = %q, %q", first, second)
	}

	receipt := testReceipt(first, 1000, 40)
	if err := ledger.Put(receipt); err != nil {
		t.Fatalf("put: %v", err)
	}
	stored, ok, err := ledger.Get(first)
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if stored.GrossUsd.Cmp(receipt.GrossUsd) != 0 || stored.CreatedAt != 1000 {
		t.Fatalf("stored = %+v", stored)
	}

	if err := ledger.Put(testReceipt(first, 2000, 10)); err == nil {
		t.Fatal("duplicate id must be rejected")
	}
	if err := ledger.Put(&RedemptionReceipt{}); err == nil {
		t.Fatal("empty id must be rejected")
	}
}

func TestLedgerUpdateRewritesInPlace(t *testing.T) {
	ledger := NewRedemptionLedger(newMockStorage())
	id, err := ledger.NextID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	receipt := testReceipt(id, 1000, 40)
	receipt.BurnMode = ""
	if err := ledger.Put(receipt); err != nil {
		t.Fatalf("put: %v", err)
	}

	receipt.BurnMode = string(BurnModeBurned)
	if err := ledger.Update(receipt); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, ok, err := ledger.Get(id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if stored.BurnMode != string(BurnModeBurned) {
		t.Fatalf("burn mode = %q, want burned", stored.BurnMode)
	}

	if err := ledger.Update(testReceipt("rd-99", 1000, 40)); err == nil {
		t.Fatal("updating a missing receipt must fail")
	}
}

func TestLedgerRemoveHidesReceipt(t *testing.T) {
	ledger := NewRedemptionLedger(newMockStorage())
	for i, ts := range []int64{100, 200} {
		id, err := ledger.NextID()
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if err := ledger.Put(testReceipt(id, ts, int64(i+1)*10)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	if err := ledger.Remove("rd-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, err := ledger.Get("rd-1"); err != nil || ok {
		t.Fatalf("removed receipt still readable: ok=%t err=%v", ok, err)
	}
	// The stale index entry is skipped on list reads.
	receipts, _, err := ledger.List(0, 0, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(receipts) != 1 || receipts[0].ReceiptID != "rd-2" {
		t.Fatalf("receipts = %+v, want only rd-2", receipts)
	}
}

func TestLedgerListWindowAndPagination(t *testing.T) {
	ledger := NewRedemptionLedger(newMockStorage())
	timestamps := []int64{100, 200, 300, 400, 500}
	for i, ts := range timestamps {
		id, err := ledger.NextID()
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if err := ledger.Put(testReceipt(id, ts, int64(i+1)*10)); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	window, _, err := ledger.List(200, 400, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("window size = %d, want 3", len(window))
	}
	if window[0].CreatedAt != 200 || window[2].CreatedAt != 400 {
		t.Fatalf("window bounds = %d..%d", window[0].CreatedAt, window[2].CreatedAt)
	}

	page, cursor, err := ledger.List(0, 0, "", 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page) != 2 || cursor == "" {
		t.Fatalf("page 1 = %d items, cursor %q", len(page), cursor)
	}
	page2, cursor2, err := ledger.List(0, 0, cursor, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("page 2 = %d items", len(page2))
	}
	if page2[0].ReceiptID == page[0].ReceiptID {
		t.Fatal("pagination returned overlapping pages")
	}
	page3, cursor3, err := ledger.List(0, 0, cursor2, 2)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 || cursor3 != "" {
		t.Fatalf("page 3 = %d items, cursor %q, want final page", len(page3), cursor3)
	}
}

func TestLedgerExportCSV(t *testing.T) {
	ledger := NewRedemptionLedger(newMockStorage())
	for i, ts := range []int64{100, 200} {
		id, err := ledger.NextID()
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if err := ledger.Put(testReceipt(id, ts, int64(i+1)*10)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	encoded, count, total, err := ledger.ExportCSV(0, 0)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if total.Cmp(usd(30)) != 0 {
		t.Fatalf("total = %s, want %s", total, usd(30))
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "receiptId" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "rd-1" || rows[2][0] != "rd-2" {
		t.Fatalf("row ids = %s, %s", rows[1][0], rows[2][0])
	}
}
