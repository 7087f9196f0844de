package domain

// ActionKind names one of the closed set of things a keeper can do on
// chain. Strategies emit actions; the binary's actuator carries them out.
type ActionKind string

const (
	ActionExecutePlan ActionKind = "execute_plan"
	ActionCreateOrder ActionKind = "create_order"
	ActionCancelOrder ActionKind = "cancel_order"
	ActionBite        ActionKind = "bite"
	ActionTopUp       ActionKind = "top_up"
)

// Action is one unit of work a strategy wants performed. Concrete action
// types live with the strategy that emits them.
type Action interface {
	// Kind identifies the action for dispatch and logging.
	Kind() ActionKind

	// Describe returns a short human-readable summary.
	Describe() string
}
