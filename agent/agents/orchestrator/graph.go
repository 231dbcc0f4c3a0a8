package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	nodex "github.com/tanpawarit/clinic-appointment-agent/agent/nodes"
)

const (
	nodeValidateRequest = "validate_request"
	nodeLoadState       = "load_or_create_state"
	nodeGuardInput      = "guard_input"
	nodeRoute           = "route"
	nodeSaveState       = "validate_and_save_state"
	nodeFinalizeReply   = "finalize_reply"
)

// compileHandleMessageGraph wires
//
//	validate -> load -> guard -> route <-> {information_node, booking_node}
//	route -> ensure_reply -> save -> finalize
//
// The route/step cycle needs AnyPredecessor triggering; the step budget
// covers maxHops round trips plus the linear nodes.
func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode(nodeValidateRequest,
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeValidateRequest, err)
	}

	if err := graph.AddLambdaNode(nodeLoadState,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeLoadState, err)
	}

	if err := graph.AddLambdaNode(nodeGuardInput,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.GuardInput(ctx, in, o.guard, o.refusal, o.hooks)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeGuardInput, err)
	}

	if err := graph.AddLambdaNode(nodeRoute,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Route(ctx, in, o.models.Classifier(), o.maxHops, o.hooks)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeRoute, err)
	}

	for _, step := range contractx.Steps {
		step := step
		if err := graph.AddLambdaNode(string(step),
			compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
				return nodex.DispatchSpecialist(ctx, in, step, o.models, o.hooks)
			}),
		); err != nil {
			return nil, fmt.Errorf("add node %s: %w", step, err)
		}
	}

	if err := graph.AddLambdaNode(nodex.NodeEnsureReply,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.EnsureReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeEnsureReply, err)
	}

	if err := graph.AddLambdaNode(nodeSaveState,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ValidateAndSaveState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeSaveState, err)
	}

	if err := graph.AddLambdaNode(nodeFinalizeReply,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeFinalizeReply, err)
	}

	guardBranch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in.Blocked {
				return nodex.NodeEnsureReply, nil
			}
			return nodeRoute, nil
		},
		map[string]bool{nodeRoute: true, nodex.NodeEnsureReply: true},
	)
	if err := graph.AddBranch(nodeGuardInput, guardBranch); err != nil {
		return nil, fmt.Errorf("add branch %s: %w", nodeGuardInput, err)
	}

	routeTargets := map[string]bool{nodex.NodeEnsureReply: true}
	for _, step := range contractx.Steps {
		routeTargets[string(step)] = true
	}
	routeBranch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if !routeTargets[in.Next] {
				return "", fmt.Errorf("%w: %q", contractx.ErrUnknownRoute, in.Next)
			}
			return in.Next, nil
		},
		routeTargets,
	)
	if err := graph.AddBranch(nodeRoute, routeBranch); err != nil {
		return nil, fmt.Errorf("add branch %s: %w", nodeRoute, err)
	}

	edges := [][2]string{
		{compose.START, nodeValidateRequest},
		{nodeValidateRequest, nodeLoadState},
		{nodeLoadState, nodeGuardInput},
		{nodex.NodeEnsureReply, nodeSaveState},
		{nodeSaveState, nodeFinalizeReply},
		{nodeFinalizeReply, compose.END},
	}
	for _, step := range contractx.Steps {
		edges = append(edges, [2]string{string(step), nodeRoute})
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx,
		compose.WithGraphName("orchestrator.handle_message"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(2*o.maxHops+10),
	)
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
