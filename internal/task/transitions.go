package task

type Action string

const (
	ActionStart   Action = "start"
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReopen  Action = "reopen"
)

type Transition struct {
	From      Status
	To        Status
	Action    Action
	AdminOnly bool
}

// transitions is the complete lifecycle graph; any pair not listed is rejected.
var transitions = []Transition{
	{From: StatusTodo, To: StatusInProgress, Action: ActionStart},
	{From: StatusInProgress, To: StatusPendingApproval, Action: ActionSubmit},
	{From: StatusPendingApproval, To: StatusCompleted, Action: ActionApprove, AdminOnly: true},
	{From: StatusPendingApproval, To: StatusInProgress, Action: ActionReject, AdminOnly: true},
	{From: StatusCompleted, To: StatusInProgress, Action: ActionReopen, AdminOnly: true},
}

func LookupTransition(from, to Status) (Transition, bool) {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

func transitionFor(action Action) Transition {
	for _, t := range transitions {
		if t.Action == action {
			return t
		}
	}
	panic("task: unknown action " + string(action))
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	_, ok := LookupTransition(from, to)
	return ok
}
