package domain

type CheckoutState string

const (
	CheckoutStateIdle                CheckoutState = "IDLE"
	CheckoutStateStaged              CheckoutState = "STAGED"
	CheckoutStateSubmitting          CheckoutState = "SUBMITTING"
	CheckoutStateOrderCommitted      CheckoutState = "ORDER_COMMITTED"
	CheckoutStateReconciling         CheckoutState = "RECONCILING"
	CheckoutStateDone                CheckoutState = "DONE"
	CheckoutStateFailed              CheckoutState = "FAILED"
	CheckoutStateReconcileIncomplete CheckoutState = "RECONCILE_INCOMPLETE"
)

// CheckoutStep names the saga step a failure or degradation happened in.
type CheckoutStep string

const (
	StepValidate     CheckoutStep = "validate"
	StepCreateOrder  CheckoutStep = "create_order"
	StepNotification CheckoutStep = "create_notification"
	StepMirror       CheckoutStep = "mirror_cleanup"
	StepLocal        CheckoutStep = "local_cleanup"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateIdle:           {CheckoutStateStaged},
	CheckoutStateStaged:         {CheckoutStateSubmitting, CheckoutStateFailed, CheckoutStateIdle},
	CheckoutStateSubmitting:     {CheckoutStateOrderCommitted, CheckoutStateFailed},
	CheckoutStateOrderCommitted: {CheckoutStateReconciling},
	CheckoutStateReconciling:    {CheckoutStateDone, CheckoutStateReconcileIncomplete},
	// a failed attempt keeps its staged lines and may be submitted again
	CheckoutStateFailed: {CheckoutStateSubmitting, CheckoutStateStaged, CheckoutStateIdle},
}

func CanTransitionTo(from, to CheckoutState) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateDone || s == CheckoutStateFailed || s == CheckoutStateReconcileIncomplete
}

// OrderExists reports whether an order has been created once the saga reached s.
func (s CheckoutState) OrderExists() bool {
	switch s {
	case CheckoutStateOrderCommitted, CheckoutStateReconciling, CheckoutStateDone, CheckoutStateReconcileIncomplete:
		return true
	}
	return false
}

// String representation (for logging)
func (s CheckoutState) String() string {
	return string(s)
}
