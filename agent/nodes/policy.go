package nodes

import (
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

const (
	DefaultMaxHops = 10

	supervisorAuthor = "supervisor"
	closingMessage   = "Is there anything else I can help you with regarding your appointments?"
	reasonHopLimit   = "hop limit reached"
	hopLimitMessage  = "We have gone back and forth for a while. Please start a new request with the doctor, date and time you need."
)

// hopLimitReached reports whether this run already used its specialist budget.
func hopLimitReached(hops, maxHops int) bool {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return hops >= maxHops
}

// nextNode maps a routing decision to the graph node that runs next.
func nextNode(st *statex.SessionState, decision contractx.RouteDecision) string {
	if st.Yielded() || decision.Next == contractx.RouteFinish {
		return NodeEnsureReply
	}
	return string(decision.Next)
}
