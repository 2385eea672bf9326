package chat

import (
	"context"
	"log"
	"sync"

	"github.com/scrypster/memento-assistant/pkg/types"
)

// refreshJob carries a finished exchange to the background memory worker.
type refreshJob struct {
	UserID      string
	WorkspaceID string
	Messages    []types.Message
}

// memoryRefresher is the slice of the memory service the queue needs.
type memoryRefresher interface {
	ProcessConversationForMemory(ctx context.Context, userID, workspaceID string, messages []types.Message)
}

// RefreshQueue runs memory extraction off the chat request path. Jobs are
// queued non-blocking after each completed exchange; when the queue is full
// the job is dropped and the exchange simply contributes no new memories.
type RefreshQueue struct {
	memories memoryRefresher
	jobs     chan refreshJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewRefreshQueue creates a refresh queue with the given buffer size and
// starts its worker.
func NewRefreshQueue(memories memoryRefresher, size int) *RefreshQueue {
	if size <= 0 {
		size = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &RefreshQueue{
		memories: memories,
		jobs:     make(chan refreshJob, size),
		ctx:      ctx,
		cancel:   cancel,
	}

	q.wg.Add(1)
	go q.worker()
	return q
}

// Enqueue submits an exchange for background extraction. Returns false when
// the queue is full or shut down.
func (q *RefreshQueue) Enqueue(userID, workspaceID string, messages []types.Message) bool {
	if q.ctx.Err() != nil {
		return false
	}

	select {
	case q.jobs <- refreshJob{UserID: userID, WorkspaceID: workspaceID, Messages: messages}:
		return true
	default:
		log.Printf("chat: memory refresh queue full, dropping job for user %s", userID)
		return false
	}
}

// Pending returns the number of queued jobs. Used by tests and the health
// endpoint.
func (q *RefreshQueue) Pending() int {
	return len(q.jobs)
}

// Close stops accepting jobs, drains the queue, and waits for the worker.
func (q *RefreshQueue) Close() {
	q.closeOnce.Do(func() {
		q.cancel()
		close(q.jobs)
	})
	q.wg.Wait()
}

func (q *RefreshQueue) worker() {
	defer q.wg.Done()

	for job := range q.jobs {
		q.process(job)
	}
}

// process runs one extraction job with a panic boundary so a bad job never
// kills the worker.
func (q *RefreshQueue) process(job refreshJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("chat: memory refresh panicked for user %s: %v", job.UserID, r)
		}
	}()

	// Extraction uses a background context: the originating request has
	// already returned.
	q.memories.ProcessConversationForMemory(context.Background(), job.UserID, job.WorkspaceID, job.Messages)
}
