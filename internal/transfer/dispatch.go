package transfer

import (
	"context"

	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
)

// DispatchResult is the uniform return shape every entry point's
// invocation through Dispatch collapses to. Only ExecuteBatchHop has a
// success payload beyond "it worked"; every other field stays zero for
// the other six ops.
type DispatchResult struct {
	HopsExecuted int
}

// Dispatch routes a tagged OpCode to its entry point, type-asserting args
// to the Args struct that op expects. This is the "tagged sum type over
// the operation enumeration plus a pure dispatch function" rendering of
// instruction dispatch: callers that already know which entry point they
// want should just call it directly on Engine; Dispatch exists for
// callers (a generic relay, a replay tool) that only have an OpCode and a
// decoded args value in hand.
func (e *Engine) Dispatch(ctx context.Context, op OpCode, args any) (DispatchResult, error) {
	switch op {
	case OpInitialize:
		a, ok := args.(InitializeArgs)
		if !ok {
			return DispatchResult{}, coreerrors.ErrInvalidConfig
		}
		return DispatchResult{}, e.Initialize(ctx, a)

	case OpExecuteHop:
		a, ok := args.(ExecuteHopArgs)
		if !ok {
			return DispatchResult{}, coreerrors.ErrInvalidConfig
		}
		return DispatchResult{}, e.ExecuteHop(ctx, a)

	case OpExecuteBatchHop:
		a, ok := args.(ExecuteBatchHopArgs)
		if !ok {
			return DispatchResult{}, coreerrors.ErrInvalidConfig
		}
		n, err := e.ExecuteBatchHop(ctx, a)
		return DispatchResult{HopsExecuted: n}, err

	case OpFinalize:
		a, ok := args.(FinalizeArgs)
		if !ok {
			return DispatchResult{}, coreerrors.ErrInvalidConfig
		}
		return DispatchResult{}, e.Finalize(ctx, a)

	case OpRefund:
		a, ok := args.(RefundArgs)
		if !ok {
			return DispatchResult{}, coreerrors.ErrInvalidConfig
		}
		return DispatchResult{}, e.Refund(ctx, a)

	case OpRevealFake:
		a, ok := args.(RevealFakeArgs)
		if !ok {
			return DispatchResult{}, coreerrors.ErrInvalidConfig
		}
		return DispatchResult{}, e.RevealFake(ctx, a)

	case OpConfigUpdate:
		a, ok := args.(ConfigUpdateArgs)
		if !ok {
			return DispatchResult{}, coreerrors.ErrInvalidConfig
		}
		return DispatchResult{}, e.ConfigUpdate(ctx, a)

	default:
		return DispatchResult{}, coreerrors.ErrInvalidConfig
	}
}
