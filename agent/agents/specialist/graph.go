package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
)

const (
	nodeGenerate     = "generate"
	nodeExecuteTools = "execute_tools"
	nodeWrapUp       = "wrap_up"
)

// newChatTemplate renders systemPrompt as a Go template followed by the
// conversation passed in the "messages" variable.
func newChatTemplate(systemPrompt string) einoprompt.ChatTemplate {
	return einoprompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder("messages", false),
	)
}

func compileStructuredLLMGraph[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, T], error) {
	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("prompt", newChatTemplate(systemPrompt)); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddLambdaNode("strip_fence", compose.InvokableLambda(stripCodeFence)); err != nil {
		return nil, fmt.Errorf("add structured fence node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add structured edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add structured edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "strip_fence"); err != nil {
		return nil, fmt.Errorf("add structured edge model->fence: %w", err)
	}
	if err := graph.AddEdge("strip_fence", "parse_json"); err != nil {
		return nil, fmt.Errorf("add structured edge fence->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add structured edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph: %w", err)
	}
	return runner, nil
}

// stripCodeFence unwraps ```json fenced replies some models produce in JSON mode.
func stripCodeFence(_ context.Context, msg *schema.Message) (*schema.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, "```") {
		return msg, nil
	}
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")

	out := *msg
	out.Content = strings.TrimSpace(content)
	return &out, nil
}

// loopState is threaded through the tool loop graph.
type loopState struct {
	Req      contractx.SpecialistRequest
	Messages []*schema.Message
	Results  []contractx.ToolResult
	Rounds   int
	Final    *schema.Message
}

func (s *loopState) last() *schema.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// compileToolLoopGraph builds
//
//	generate -> (execute_tools -> generate)* -> END
//	execute_tools -> wrap_up -> END  (once maxRounds tool rounds have run)
//
// Tool calls are never dropped: a pending batch always executes, and the
// last batch is followed by a tool-free wrap_up generation.
func compileToolLoopGraph(
	ctx context.Context,
	generate func(context.Context, *loopState) (*loopState, error),
	executeTools func(context.Context, *loopState) (*loopState, error),
	wrapUp func(context.Context, *loopState) (*loopState, error),
	maxRounds int,
	graphName string,
) (compose.Runnable[*loopState, *loopState], error) {
	graph := compose.NewGraph[*loopState, *loopState]()

	if err := graph.AddLambdaNode(nodeGenerate, compose.InvokableLambda(generate)); err != nil {
		return nil, fmt.Errorf("add tool loop generate node: %w", err)
	}
	if err := graph.AddLambdaNode(nodeExecuteTools, compose.InvokableLambda(executeTools)); err != nil {
		return nil, fmt.Errorf("add tool loop execute node: %w", err)
	}
	if err := graph.AddLambdaNode(nodeWrapUp, compose.InvokableLambda(wrapUp)); err != nil {
		return nil, fmt.Errorf("add tool loop wrap up node: %w", err)
	}

	afterGenerate := compose.NewGraphBranch(
		func(ctx context.Context, in *loopState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: tool loop state is nil", contractx.ErrValidation)
			}
			if last := in.last(); last != nil && len(last.ToolCalls) > 0 {
				return nodeExecuteTools, nil
			}
			return compose.END, nil
		},
		map[string]bool{
			nodeExecuteTools: true,
			compose.END:      true,
		},
	)
	afterExecute := compose.NewGraphBranch(
		func(ctx context.Context, in *loopState) (string, error) {
			if in.Rounds < maxRounds {
				return nodeGenerate, nil
			}
			return nodeWrapUp, nil
		},
		map[string]bool{
			nodeGenerate: true,
			nodeWrapUp:   true,
		},
	)

	if err := graph.AddEdge(compose.START, nodeGenerate); err != nil {
		return nil, fmt.Errorf("add tool loop edge start->generate: %w", err)
	}
	if err := graph.AddBranch(nodeGenerate, afterGenerate); err != nil {
		return nil, fmt.Errorf("add tool loop generate branch: %w", err)
	}
	if err := graph.AddBranch(nodeExecuteTools, afterExecute); err != nil {
		return nil, fmt.Errorf("add tool loop execute branch: %w", err)
	}
	if err := graph.AddEdge(nodeWrapUp, compose.END); err != nil {
		return nil, fmt.Errorf("add tool loop edge wrap_up->end: %w", err)
	}

	runner, err := graph.Compile(ctx,
		compose.WithGraphName(graphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(2*maxRounds+4),
	)
	if err != nil {
		return nil, fmt.Errorf("compile tool loop graph: %w", err)
	}
	return runner, nil
}
