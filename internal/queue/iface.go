package queue

import "context"

// Enqueuer publishes dispatch requests to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, req *Request) (string, error)
}

// Dequeuer consumes dispatch requests from the queue.
// Start begins consuming in background goroutines.
// Stop gracefully shuts down consumers.
type Dequeuer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Handler processes a single dispatch request. Requests are acknowledged
// whatever Handle returns; the error is only logged and counted.
type Handler interface {
	Handle(ctx context.Context, req *Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) error

func (f HandlerFunc) Handle(ctx context.Context, req *Request) error {
	return f(ctx, req)
}
