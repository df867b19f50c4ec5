package domain

// A Task is a bounty funded either by a user or by a channel treasury:
// created → claimed → in_progress → completed | cancelled.

// TaskStatus tracks task lifecycle.
type TaskStatus string

const (
	TaskCreated    TaskStatus = "created"
	TaskClaimed    TaskStatus = "claimed"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task is derived from task_* events.
type Task struct {
	ID       string     `json:"id"`
	Channel  string     `json:"channel"`
	Title    string     `json:"title,omitempty"`
	Creator  string     `json:"creator"`    // user id or "channel:<id>"
	Author   string     `json:"author"`     // signer of task_created
	Reward   int64      `json:"reward"`     // SP reserved in escrow
	TaxRate  float64    `json:"tax_rate"`   // task_tax_rate pinned at creation
	TaxBps   int64      `json:"tax_bps"`    // TaxRate in basis points, used for arithmetic
	Status   TaskStatus `json:"status"`
	Assignee string     `json:"assignee,omitempty"`

	CreatedClock uint64 `json:"created_clock"`
	ClosedClock  uint64 `json:"closed_clock,omitempty"`
}

// IsTerminal returns true if the task has reached a final state.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskCancelled
}

// TreasuryFunded reports whether the reward came from the channel treasury.
func (t *Task) TreasuryFunded() bool {
	return IsTreasuryAccount(t.Creator)
}

// Tax returns floor(reward * rate) using the pinned basis points.
func (t *Task) Tax() int64 {
	return t.Reward * t.TaxBps / 10_000
}
