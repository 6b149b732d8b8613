package saga

import "time"

const (
	stepReserveSlot    = "reserve_slot"
	stepCreateSession  = "create_session"
	stepValidateUser   = "validate_credit"
	stepChargeCredit   = "charge_credit"
	stepCompleteLedger = "complete_session"
	stepReleaseSlot    = "release_slot"
)

const (
	stepCommitted   = "committed"
	stepCompensated = "compensated"
)

type stepRecord struct {
	Name   string
	Status string
	At     time.Time
}

// executionContext records which steps of one orchestration call have
// committed, so compensation knows exactly what to undo and in what order.
// It lives on the calling goroutine's stack for the duration of the call and
// is discarded afterwards; it is never shared, persisted or promoted to a
// singleton.
type executionContext struct {
	saga  string
	steps []stepRecord
}

func newExecutionContext(saga string) executionContext {
	return executionContext{saga: saga}
}

func (c *executionContext) commit(name string) {
	c.steps = append(c.steps, stepRecord{Name: name, Status: stepCommitted, At: time.Now()})
}

func (c *executionContext) compensated(name string) {
	for i := range c.steps {
		if c.steps[i].Name == name && c.steps[i].Status == stepCommitted {
			c.steps[i].Status = stepCompensated
			c.steps[i].At = time.Now()
			return
		}
	}
}

// committed returns the committed step names in reverse order, the order
// compensation must run in.
func (c *executionContext) committed() []string {
	var names []string
	for i := len(c.steps) - 1; i >= 0; i-- {
		if c.steps[i].Status == stepCommitted {
			names = append(names, c.steps[i].Name)
		}
	}
	return names
}
