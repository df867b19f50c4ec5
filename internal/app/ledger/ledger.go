// Package ledger implements the Balance Engine: a double-entry SP ledger
// derived from transaction and task_* events.
// Every balance movement creates matched DEBIT/CREDIT entries, so per event
// SUM(debits) == SUM(credits). No account, user or treasury, may end an
// event with a negative balance.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// Params is the read-only view of the active configuration an event is
// applied against. Both params.Registry and domain.ConfigSnapshot satisfy it.
type Params interface {
	Int(key string) int64
	Float(key string) float64
}

// Ledger holds derived balances, reputation and tasks.
// It is not safe for concurrent use; derivation owns it exclusively.
type Ledger struct {
	balances   map[string]int64 // opened accounts only
	reputation map[string]int64
	tasks      map[string]*domain.Task
	journal    []domain.LedgerEntry
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[string]int64),
		reputation: make(map[string]int64),
		tasks:      make(map[string]*domain.Task),
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Balance returns the balance of account. An account that has never been
// posted to reports the opening balance it would receive under cfg.
func (l *Ledger) Balance(account string, cfg Params) int64 {
	if bal, ok := l.balances[account]; ok {
		return bal
	}
	return openingBalance(account, cfg)
}

// Treasury returns the treasury balance of a channel.
func (l *Ledger) Treasury(channel string, cfg Params) int64 {
	return l.Balance(domain.TreasuryAccount(channel), cfg)
}

// Reputation returns the reputation accrued by account.
func (l *Ledger) Reputation(account string) int64 {
	return l.reputation[account]
}

// Task returns a copy of a task.
func (l *Ledger) Task(id string) (*domain.Task, bool) {
	t, ok := l.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Balances returns a copy of every opened account balance.
func (l *Ledger) Balances() map[string]int64 {
	out := make(map[string]int64, len(l.balances))
	for k, v := range l.balances {
		out[k] = v
	}
	return out
}

// Reputations returns a copy of every non-zero reputation.
func (l *Ledger) Reputations() map[string]int64 {
	out := make(map[string]int64, len(l.reputation))
	for k, v := range l.reputation {
		out[k] = v
	}
	return out
}

// Tasks returns copies of all tasks sorted by id.
func (l *Ledger) Tasks() []domain.Task {
	out := make([]domain.Task, 0, len(l.tasks))
	for _, t := range l.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entries returns up to limit most recent postings for account, newest first.
// limit <= 0 returns all of them.
func (l *Ledger) Entries(account string, limit int) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for i := len(l.journal) - 1; i >= 0; i-- {
		if l.journal[i].Account != account {
			continue
		}
		out = append(out, l.journal[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Journal returns every posting in application order.
func (l *Ledger) Journal() []domain.LedgerEntry {
	return append([]domain.LedgerEntry(nil), l.journal...)
}

// ─── Transactions ───────────────────────────────────────────────────────────

// ApplyTransaction moves SP from the event author to p.To. No tax applies.
func (l *Ledger) ApplyTransaction(ev domain.Event, p *domain.TransactionPayload, cfg Params) error {
	b := l.begin(ev, cfg)
	b.move(ev.Author, p.To, p.Amount, domain.TxTransfer, "")
	return b.commit()
}

// ─── Task Lifecycle ─────────────────────────────────────────────────────────

// CreateTask escrows the reward from the funding account (the author or the
// channel treasury) and pins the tax rate active at this event.
func (l *Ledger) CreateTask(ev domain.Event, p *domain.TaskCreatedPayload, cfg Params) error {
	if _, exists := l.tasks[p.TaskID]; exists {
		return domain.Inconsistent(ev.ID, domain.ErrTaskExists, "task %s", p.TaskID)
	}
	if minReward := cfg.Int(domain.ParamMinTaskReward); p.Reward < minReward {
		return domain.Inconsistent(ev.ID, domain.ErrRewardTooSmall, "reward %d < %d", p.Reward, minReward)
	}

	rate := cfg.Float(domain.ParamTaskTaxRate)
	task := &domain.Task{
		ID:           p.TaskID,
		Channel:      ev.Channel,
		Title:        p.Title,
		Creator:      p.FundingAccount(ev),
		Author:       ev.Author,
		Reward:       p.Reward,
		TaxRate:      rate,
		TaxBps:       int64(math.Round(rate * 10_000)),
		Status:       domain.TaskCreated,
		CreatedClock: ev.Clock,
	}

	b := l.begin(ev, cfg)
	b.move(task.Creator, domain.EscrowAccount(task.ID), task.Reward, domain.TxEscrow, task.ID)
	if err := b.commit(); err != nil {
		return err
	}
	l.tasks[task.ID] = task
	return nil
}

// ClaimTask makes the event author the assignee of a created task.
func (l *Ledger) ClaimTask(ev domain.Event, p *domain.TaskClaimedPayload) error {
	t, err := l.lookupTask(ev, p.TaskID)
	if err != nil {
		return err
	}
	if t.Status != domain.TaskCreated {
		return domain.Inconsistent(ev.ID, domain.ErrTaskState, "claim %s in state %s", t.ID, t.Status)
	}
	t.Status = domain.TaskClaimed
	t.Assignee = ev.Author
	return nil
}

// ProgressTask records assignee progress.
func (l *Ledger) ProgressTask(ev domain.Event, p *domain.TaskProgressedPayload) error {
	t, err := l.lookupTask(ev, p.TaskID)
	if err != nil {
		return err
	}
	if t.Status != domain.TaskClaimed && t.Status != domain.TaskInProgress {
		return domain.Inconsistent(ev.ID, domain.ErrTaskState, "progress %s in state %s", t.ID, t.Status)
	}
	if ev.Author != t.Assignee {
		return domain.Inconsistent(ev.ID, domain.ErrNotPermitted, "%s is not the assignee of %s", ev.Author, t.ID)
	}
	t.Status = domain.TaskInProgress
	return nil
}

// CompleteTask releases the escrow: reward minus tax to the assignee, tax to
// the channel treasury. The assignee earns completion reputation under cfg.
func (l *Ledger) CompleteTask(ev domain.Event, p *domain.TaskCompletedPayload, cfg Params) error {
	t, err := l.lookupTask(ev, p.TaskID)
	if err != nil {
		return err
	}
	if t.Status != domain.TaskClaimed && t.Status != domain.TaskInProgress {
		return domain.Inconsistent(ev.ID, domain.ErrTaskState, "complete %s in state %s", t.ID, t.Status)
	}
	if ev.Author != t.Assignee && ev.Author != t.Author {
		return domain.Inconsistent(ev.ID, domain.ErrNotPermitted, "%s may not complete %s", ev.Author, t.ID)
	}

	tax := t.Tax()
	escrow := domain.EscrowAccount(t.ID)
	b := l.begin(ev, cfg)
	b.move(escrow, t.Assignee, t.Reward-tax, domain.TxReward, t.ID)
	b.move(escrow, domain.TreasuryAccount(t.Channel), tax, domain.TxTax, t.ID)
	if err := b.commit(); err != nil {
		return err
	}

	t.Status = domain.TaskCompleted
	t.ClosedClock = ev.Clock
	l.AwardReputation(t.Assignee, cfg.Int(domain.ParamTaskCompletionRep))
	return nil
}

// CancelTask refunds the escrow to whoever funded the task.
func (l *Ledger) CancelTask(ev domain.Event, p *domain.TaskCancelledPayload, cfg Params) error {
	t, err := l.lookupTask(ev, p.TaskID)
	if err != nil {
		return err
	}
	if t.IsTerminal() {
		return domain.Inconsistent(ev.ID, domain.ErrTaskState, "cancel %s in state %s", t.ID, t.Status)
	}
	if ev.Author != t.Author {
		return domain.Inconsistent(ev.ID, domain.ErrNotPermitted, "%s may not cancel %s", ev.Author, t.ID)
	}

	b := l.begin(ev, cfg)
	b.move(domain.EscrowAccount(t.ID), t.Creator, t.Reward, domain.TxRefund, t.ID)
	if err := b.commit(); err != nil {
		return err
	}
	t.Status = domain.TaskCancelled
	t.ClosedClock = ev.Clock
	return nil
}

// AwardReputation adds n to account's reputation. Non-positive n is a no-op.
func (l *Ledger) AwardReputation(account string, n int64) {
	if n <= 0 {
		return
	}
	l.reputation[account] += n
}

func (l *Ledger) lookupTask(ev domain.Event, id string) (*domain.Task, error) {
	t, ok := l.tasks[id]
	if !ok {
		return nil, domain.Inconsistent(ev.ID, domain.ErrMissingDependency, "task %s not created", id)
	}
	if t.Channel != ev.Channel {
		return nil, domain.Inconsistent(ev.ID, domain.ErrTaskNotFound, "task %s lives in channel %s", id, t.Channel)
	}
	return t, nil
}

// ─── Postings ───────────────────────────────────────────────────────────────

func openingBalance(account string, cfg Params) int64 {
	switch {
	case domain.IsTreasuryAccount(account):
		return cfg.Int(domain.ParamTreasuryInitialBalance)
	case strings.HasPrefix(account, domain.EscrowPrefix):
		return 0
	default:
		return cfg.Int(domain.ParamInitialBalance)
	}
}

type transfer struct {
	from, to string
	amount   int64
	typ      domain.TransactionType
	taskID   string
}

// batch collects the transfers of one event. Nothing touches the ledger
// until commit has checked every resulting balance.
type batch struct {
	l         *Ledger
	ev        domain.Event
	cfg       Params
	transfers []transfer
}

func (l *Ledger) begin(ev domain.Event, cfg Params) *batch {
	return &batch{l: l, ev: ev, cfg: cfg}
}

func (b *batch) move(from, to string, amount int64, typ domain.TransactionType, taskID string) {
	if amount == 0 {
		return
	}
	b.transfers = append(b.transfers, transfer{from: from, to: to, amount: amount, typ: typ, taskID: taskID})
}

func (b *batch) commit() error {
	// Projected balances, with accounts opened at the current config.
	projected := make(map[string]int64)
	get := func(acct string) int64 {
		if v, ok := projected[acct]; ok {
			return v
		}
		return b.l.Balance(acct, b.cfg)
	}
	for _, tr := range b.transfers {
		projected[tr.from] = get(tr.from) - tr.amount
		projected[tr.to] = get(tr.to) + tr.amount
	}

	accounts := make([]string, 0, len(projected))
	for acct := range projected {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)
	for _, acct := range accounts {
		if projected[acct] >= 0 {
			continue
		}
		err := domain.ErrInsufficientFunds
		if domain.IsTreasuryAccount(acct) {
			err = domain.ErrInsufficientTreasury
		}
		return domain.Inconsistent(b.ev.ID, err, "%s would hold %d", acct, projected[acct])
	}

	for _, tr := range b.transfers {
		b.post(tr.from, domain.EntryDebit, tr)
		b.post(tr.to, domain.EntryCredit, tr)
	}
	return nil
}

func (b *batch) post(acct string, side domain.EntryType, tr transfer) {
	bal := b.l.Balance(acct, b.cfg)
	if side == domain.EntryDebit {
		bal -= tr.amount
	} else {
		bal += tr.amount
	}
	b.l.balances[acct] = bal
	b.l.journal = append(b.l.journal, domain.LedgerEntry{
		EventID:   b.ev.ID,
		Clock:     b.ev.Clock,
		Type:      tr.typ,
		EntryType: side,
		Account:   acct,
		Amount:    tr.amount,
		TaskID:    tr.taskID,
		Balance:   bal,
	})
}

// Conserved reports whether the journal's debits equal its credits.
func (l *Ledger) Conserved() error {
	var debits, credits int64
	for _, e := range l.journal {
		if e.EntryType == domain.EntryDebit {
			debits += e.Amount
		} else {
			credits += e.Amount
		}
	}
	if debits != credits {
		return fmt.Errorf("ledger imbalance: debits %d != credits %d", debits, credits)
	}
	return nil
}
