package worker

import (
	"context"
	"fmt"
)

// EchoWorker acknowledges every task without doing real work. Used for
// dry runs and as the default worker type in the sample configuration.
type EchoWorker struct{}

// NewEchoWorker creates an echo worker.
func NewEchoWorker() *EchoWorker {
	return &EchoWorker{}
}

// Execute returns a canned acknowledgement of the instructions.
func (w *EchoWorker) Execute(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return Response{Output: fmt.Sprintf("[%s] done: %s", req.Capability, req.Instructions)}, nil
}

// Close is a no-op.
func (w *EchoWorker) Close() error { return nil }
