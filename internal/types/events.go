package types

// Event is an in-memory journal entry appended by the ledger. Skip reasons
// and best-effort failures surface here rather than as returned errors.
type Event struct {
	Type       string
	Attributes map[string]string
}

const (
	EventSaved        = "savings.saved"
	EventSaveSkipped  = "savings.skipped"
	EventTreasuryFee  = "treasury.fee"
	EventDCAEnqueued  = "dca.enqueued"
	EventDCAExecuted  = "dca.executed"
	EventDCAFailed    = "dca.enqueue_failed"
	EventDailyDone    = "daily.executed"
	EventDailySkipped = "daily.skipped"
	EventYieldFailed  = "daily.yield_failed"
	EventWithdrawal   = "savings.withdrawn"
	EventPlanCreated  = "daily.plan_created"
	EventPlanStopped  = "daily.plan_cancelled"
)
