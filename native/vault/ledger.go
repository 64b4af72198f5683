package vault

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// RedemptionReceipt captures the settled figures for one redemption. Both the
// gross (pre-fee) and net (post-fee) USD values are recorded so audits can
// reconcile cap consumption against payouts.
type RedemptionReceipt struct {
	ReceiptID    string
	RoundID      uint64
	Wallet       [20]byte
	InputToken   [20]byte
	OutputToken  [20]byte
	InputAmount  *big.Int
	FeeAmount    *big.Int
	NetAmount    *big.Int
	OutputAmount *big.Int
	GrossUsd     *big.Int
	NetUsd       *big.Int
	BurnMode     string
	BurnReason   string
	CreatedAt    int64
}

// Copy returns a deep copy to avoid callers mutating shared pointers.
func (r *RedemptionReceipt) Copy() *RedemptionReceipt {
	if r == nil {
		return nil
	}
	clone := *r
	clone.InputAmount = cloneAmount(r.InputAmount)
	clone.FeeAmount = cloneAmount(r.FeeAmount)
	clone.NetAmount = cloneAmount(r.NetAmount)
	clone.OutputAmount = cloneAmount(r.OutputAmount)
	clone.GrossUsd = cloneAmount(r.GrossUsd)
	clone.NetUsd = cloneAmount(r.NetUsd)
	return &clone
}

type storedReceipt struct {
	ReceiptID    string
	RoundID      uint64
	Wallet       [20]byte
	InputToken   [20]byte
	OutputToken  [20]byte
	InputAmount  string
	FeeAmount    string
	NetAmount    string
	OutputAmount string
	GrossUsd     string
	NetUsd       string
	BurnMode     string
	BurnReason   string
	CreatedAt    uint64
}

type receiptIndexEntry struct {
	ReceiptID string
	CreatedAt uint64
}

type receiptSeqRecord struct {
	Next uint64
}

// RedemptionLedger persists redemption receipts in the key-value store with
// an append-only time index for audits and exports.
type RedemptionLedger struct {
	store Storage
}

// NewRedemptionLedger constructs a ledger bound to the storage backend.
func NewRedemptionLedger(store Storage) *RedemptionLedger {
	return &RedemptionLedger{store: store}
}

// NextID allocates the next receipt identifier from the persistent sequence.
func (l *RedemptionLedger) NextID() (string, error) {
	if l == nil {
		return "", fmt.Errorf("redemption ledger not initialised")
	}
	var seq receiptSeqRecord
	if _, err := l.store.KVGet(receiptSeqKey, &seq); err != nil {
		return "", err
	}
	seq.Next++
	if err := l.store.KVPut(receiptSeqKey, seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("rd-%d", seq.Next), nil
}

// Put stores the receipt, enforcing unique identifiers.
func (l *RedemptionLedger) Put(receipt *RedemptionReceipt) error {
	if l == nil {
		return fmt.Errorf("redemption ledger not initialised")
	}
	if receipt == nil {
		return fmt.Errorf("redemption ledger: receipt must not be nil")
	}
	id := strings.TrimSpace(receipt.ReceiptID)
	if id == "" {
		return fmt.Errorf("redemption ledger: receiptId required")
	}
	key := appendString(receiptPrefix, id)
	var existing storedReceipt
	ok, err := l.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("redemption ledger: receipt %s already exists", id)
	}
	stored := toStoredReceipt(receipt)
	if err := l.store.KVPut(key, stored); err != nil {
		return err
	}
	entry := receiptIndexEntry{ReceiptID: stored.ReceiptID, CreatedAt: stored.CreatedAt}
	encoded, err := rlp.EncodeToBytes(entry)
	if err != nil {
		return err
	}
	if err := l.store.KVAppend(receiptIndexKey, encoded); err != nil {
		_ = l.store.KVDelete(key)
		return err
	}
	return nil
}

// Update rewrites an existing receipt in place. The receipt must already have
// been stored with Put.
func (l *RedemptionLedger) Update(receipt *RedemptionReceipt) error {
	if l == nil {
		return fmt.Errorf("redemption ledger not initialised")
	}
	if receipt == nil {
		return fmt.Errorf("redemption ledger: receipt must not be nil")
	}
	id := strings.TrimSpace(receipt.ReceiptID)
	if id == "" {
		return fmt.Errorf("redemption ledger: receiptId required")
	}
	key := appendString(receiptPrefix, id)
	var existing storedReceipt
	ok, err := l.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("redemption ledger: receipt %s not found", id)
	}
	return l.store.KVPut(key, toStoredReceipt(receipt))
}

// Remove deletes a receipt record. Stale index entries pointing at a removed
// receipt are skipped on reads.
func (l *RedemptionLedger) Remove(receiptID string) error {
	if l == nil {
		return fmt.Errorf("redemption ledger not initialised")
	}
	id := strings.TrimSpace(receiptID)
	if id == "" {
		return fmt.Errorf("redemption ledger: receiptId required")
	}
	return l.store.KVDelete(appendString(receiptPrefix, id))
}

// Get retrieves a receipt by identifier.
func (l *RedemptionLedger) Get(receiptID string) (*RedemptionReceipt, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("redemption ledger not initialised")
	}
	key := appendString(receiptPrefix, strings.TrimSpace(receiptID))
	var stored storedReceipt
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	receipt, err := fromStoredReceipt(&stored)
	if err != nil {
		return nil, false, err
	}
	return receipt, true, nil
}

// List returns receipts within the inclusive timestamp range, paginated by
// the receipt id of the last item from the previous page.
func (l *RedemptionLedger) List(startTs, endTs int64, cursor string, limit int) ([]*RedemptionReceipt, string, error) {
	if l == nil {
		return nil, "", fmt.Errorf("redemption ledger not initialised")
	}
	entries, err := l.loadIndex()
	if err != nil {
		return nil, "", err
	}
	filtered := make([]receiptIndexEntry, 0, len(entries))
	for _, entry := range entries {
		created := int64(entry.CreatedAt)
		if startTs != 0 && created < startTs {
			continue
		}
		if endTs != 0 && created > endTs {
			continue
		}
		filtered = append(filtered, entry)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt == filtered[j].CreatedAt {
			return filtered[i].ReceiptID < filtered[j].ReceiptID
		}
		return filtered[i].CreatedAt < filtered[j].CreatedAt
	})
	startIdx := 0
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		for i, entry := range filtered {
			if entry.ReceiptID == trimmed {
				startIdx = i + 1
				break
			}
		}
	}
	pageSize := limit
	if pageSize <= 0 {
		pageSize = len(filtered) - startIdx
	}
	receipts := make([]*RedemptionReceipt, 0, pageSize)
	nextCursor := ""
	for i := startIdx; i < len(filtered) && len(receipts) < pageSize; i++ {
		receipt, ok, err := l.Get(filtered[i].ReceiptID)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			continue
		}
		receipts = append(receipts, receipt)
		nextCursor = filtered[i].ReceiptID
	}
	if startIdx+len(receipts) >= len(filtered) {
		nextCursor = ""
	}
	return receipts, nextCursor, nil
}

// ReceiptCSVHeader is the canonical CSV header for receipt exports.
var ReceiptCSVHeader = []string{"receiptId", "roundId", "wallet", "inputToken", "outputToken", "inputAmount", "feeAmount", "netAmount", "outputAmount", "grossUsd", "netUsd", "burnMode", "burnReason", "createdAt"}

// ExportCSV renders receipts in the window as base64 CSV alongside the entry
// count and total gross USD redeemed.
func (l *RedemptionLedger) ExportCSV(startTs, endTs int64) (string, int, *big.Int, error) {
	if l == nil {
		return "", 0, nil, fmt.Errorf("redemption ledger not initialised")
	}
	receipts, _, err := l.List(startTs, endTs, "", 0)
	if err != nil {
		return "", 0, nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(ReceiptCSVHeader); err != nil {
		return "", 0, nil, err
	}
	total := big.NewInt(0)
	for _, receipt := range receipts {
		if receipt.GrossUsd != nil {
			total = new(big.Int).Add(total, receipt.GrossUsd)
		}
		row := []string{
			receipt.ReceiptID,
			strconv.FormatUint(receipt.RoundID, 10),
			hex.EncodeToString(receipt.Wallet[:]),
			hex.EncodeToString(receipt.InputToken[:]),
			hex.EncodeToString(receipt.OutputToken[:]),
			amountToString(receipt.InputAmount),
			amountToString(receipt.FeeAmount),
			amountToString(receipt.NetAmount),
			amountToString(receipt.OutputAmount),
			amountToString(receipt.GrossUsd),
			amountToString(receipt.NetUsd),
			receipt.BurnMode,
			receipt.BurnReason,
			strconv.FormatInt(receipt.CreatedAt, 10),
		}
		if err := writer.Write(row); err != nil {
			return "", 0, nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", 0, nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return encoded, len(receipts), total, nil
}

func (l *RedemptionLedger) loadIndex() ([]receiptIndexEntry, error) {
	var raw [][]byte
	if err := l.store.KVGetList(receiptIndexKey, &raw); err != nil {
		return nil, err
	}
	entries := make([]receiptIndexEntry, 0, len(raw))
	for _, encoded := range raw {
		if len(encoded) == 0 {
			continue
		}
		var entry receiptIndexEntry
		if err := rlp.DecodeBytes(encoded, &entry); err != nil {
			return nil, err
		}
		if strings.TrimSpace(entry.ReceiptID) == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func toStoredReceipt(receipt *RedemptionReceipt) storedReceipt {
	stored := storedReceipt{
		ReceiptID:   strings.TrimSpace(receipt.ReceiptID),
		RoundID:     receipt.RoundID,
		Wallet:      receipt.Wallet,
		InputToken:  receipt.InputToken,
		OutputToken: receipt.OutputToken,
		BurnMode:    strings.TrimSpace(receipt.BurnMode),
		BurnReason:  strings.TrimSpace(receipt.BurnReason),
	}
	stored.InputAmount = amountToString(receipt.InputAmount)
	stored.FeeAmount = amountToString(receipt.FeeAmount)
	stored.NetAmount = amountToString(receipt.NetAmount)
	stored.OutputAmount = amountToString(receipt.OutputAmount)
	stored.GrossUsd = amountToString(receipt.GrossUsd)
	stored.NetUsd = amountToString(receipt.NetUsd)
	if receipt.CreatedAt > 0 {
		stored.CreatedAt = uint64(receipt.CreatedAt)
	}
	return stored
}

func fromStoredReceipt(stored *storedReceipt) (*RedemptionReceipt, error) {
	if stored == nil {
		return nil, fmt.Errorf("redemption ledger: nil stored receipt")
	}
	receipt := &RedemptionReceipt{
		ReceiptID:   stored.ReceiptID,
		RoundID:     stored.RoundID,
		Wallet:      stored.Wallet,
		InputToken:  stored.InputToken,
		OutputToken: stored.OutputToken,
		BurnMode:    stored.BurnMode,
		BurnReason:  stored.BurnReason,
		CreatedAt:   int64(stored.CreatedAt),
	}
	fields := []struct {
		value  string
		target **big.Int
	}{
		{stored.InputAmount, &receipt.InputAmount},
		{stored.FeeAmount, &receipt.FeeAmount},
		{stored.NetAmount, &receipt.NetAmount},
		{stored.OutputAmount, &receipt.OutputAmount},
		{stored.GrossUsd, &receipt.GrossUsd},
		{stored.NetUsd, &receipt.NetUsd},
	}
	for _, field := range fields {
		parsed, err := parseStoredAmount(field.value)
		if err != nil {
			return nil, err
		}
		*field.target = parsed
	}
	return receipt, nil
}

func parseStoredAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("redemption ledger: invalid amount %q", value)
	}
	return amount, nil
}

func amountToString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func cloneAmount(amount *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(amount)
}
