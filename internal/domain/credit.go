package domain

// ─── Credit Types ───────────────────────────────────────────────────────────
// Every balance movement is recorded as a matched DEBIT/CREDIT pair.
// Per event, SUM(debits) == SUM(credits).

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType represents the business reason for a posting.
type TransactionType string

const (
	TxTransfer TransactionType = "TRANSFER" // Plain transaction event
	TxEscrow   TransactionType = "ESCROW"   // Reward reserved at task creation
	TxReward   TransactionType = "REWARD"   // Reward released to assignee
	TxTax      TransactionType = "TAX"      // Tax share routed to treasury
	TxRefund   TransactionType = "REFUND"   // Escrow returned on cancellation
)

// LedgerEntry is a single posting derived from an event.
type LedgerEntry struct {
	EventID   string          `json:"event_id"`
	Clock     uint64          `json:"clock"`
	Type      TransactionType `json:"type"`
	EntryType EntryType       `json:"entry_type"`
	Account   string          `json:"account"`
	Amount    int64           `json:"amount"`
	TaskID    string          `json:"task_id,omitempty"`
	Balance   int64           `json:"balance"` // account balance after the posting
}

// Account is a derived balance view.
type Account struct {
	OwnerID    string `json:"owner_id"`
	BalanceSP  int64  `json:"balance_sp"`
	Reputation int64  `json:"reputation"`
}

// Treasury is a derived per-channel balance view.
type Treasury struct {
	ChannelID string `json:"channel_id"`
	BalanceSP int64  `json:"balance_sp"`
}
