package contract

import "context"

// Classifier is the Router's intent classifier.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (RouteDecision, error)
}

// Specialist grounds one user request in zero or more tool calls.
type Specialist interface {
	Run(ctx context.Context, req SpecialistRequest) (SpecialistResponse, error)
}

type Registry interface {
	Classifier() Classifier
	Specialist(step StepName) (Specialist, bool)
}

// ToolGateway executes tool calls on behalf of a specialist. Failures are
// reported inside ToolResult, never as an error.
type ToolGateway interface {
	Execute(ctx context.Context, step StepName, identity int64, req ToolRequest) ToolResult
}

// Guard screens user input before it reaches the Router.
type Guard interface {
	Check(ctx context.Context, text string) (GuardVerdict, error)
}
