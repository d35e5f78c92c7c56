package scheduler

// Syncer refreshes stored market data.
type Syncer interface {
	SyncAll() error
}

// HistorySyncJob refreshes the local price history from the upstream API.
type HistorySyncJob struct {
	syncer Syncer
}

// NewHistorySyncJob creates a new history sync job
func NewHistorySyncJob(syncer Syncer) *HistorySyncJob {
	return &HistorySyncJob{syncer: syncer}
}

func (j *HistorySyncJob) Name() string { return "history_sync" }

func (j *HistorySyncJob) Run() error { return j.syncer.SyncAll() }

// BudgetResetter resets a daily API request budget.
type BudgetResetter interface {
	ResetDailyCounter()
}

// BudgetResetJob resets the upstream API request budget each day.
type BudgetResetJob struct {
	resetter BudgetResetter
}

// NewBudgetResetJob creates a new budget reset job
func NewBudgetResetJob(resetter BudgetResetter) *BudgetResetJob {
	return &BudgetResetJob{resetter: resetter}
}

func (j *BudgetResetJob) Name() string { return "budget_reset" }

func (j *BudgetResetJob) Run() error {
	j.resetter.ResetDailyCounter()
	return nil
}
