package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type taskResult struct {
	value int
	err   error
}

type runTask struct {
	fn func() (*taskResult, error)
}

func TestBackgroundTask(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	as := NewActorSystemWithZapLogger(zap.NewNop())
	results := make(chan taskResult, 4)

	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case runTask:
			NewBackgroundTask(ctx, msg.fn).Recover(func(err error) taskResult {
				return taskResult{err: err}
			}).WithTimeout(100 * time.Millisecond).PipeTo(ctx.Self())
		case taskResult:
			results <- msg
		}
	}))

	as.Root.Send(pid, runTask{fn: func() (*taskResult, error) { return &taskResult{value: 42}, nil }})
	as.Root.Send(pid, runTask{fn: func() (*taskResult, error) { return nil, errors.New("boom") }})
	as.Root.Send(pid, runTask{fn: func() (*taskResult, error) {
		time.Sleep(time.Second)
		return &taskResult{value: 1}, nil
	}})

	var values []int
	var failures int
	for i := 0; i < 3; i++ {
		select {
		case res := <-results:
			if res.err != nil {
				failures++
			} else {
				values = append(values, res.value)
			}
		case <-time.After(2 * time.Second):
			require.FailNow("task result missing")
		}
	}
	assert.Equal([]int{42}, values)
	assert.Equal(2, failures, "error and timeout are recovered")

	as.Shutdown()
}

func TestStashKeepsSender(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	as := NewActorSystemWithZapLogger(zap.NewNop())
	stash := &Stash{}
	ready := false

	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case string:
			ready = true
			stash.UnstashAll(ctx)
		case domain.ActorHealthRequest:
			if !ready {
				stash.Stash(ctx, msg)
				return
			}
			ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{Healthy: true})
		}
	}))

	future := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second)
	as.Root.Send(pid, "ready")

	res, err := future.Result()
	require.NoError(err)
	assert.True(res.(domain.ActorHealthResponse).Healthy)

	as.Shutdown()
}

func TestUnstashOldest(t *testing.T) {

	assert := assert.New(t)

	as := NewActorSystemWithZapLogger(zap.NewNop())
	stash := &Stash{}
	busy := true
	replayed := make(chan int, 3)

	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case string:
			busy = false
			stash.UnstashOldest(ctx)
		case int:
			if busy {
				stash.Stash(ctx, msg)
				return
			}
			replayed <- msg
		}
	}))

	as.Root.Send(pid, 1)
	as.Root.Send(pid, 2)
	as.Root.Send(pid, "idle")

	select {
	case v := <-replayed:
		assert.Equal(1, v, "oldest message first")
	case <-time.After(time.Second):
		t.Fatal("stashed message not replayed")
	}
	select {
	case v := <-replayed:
		t.Fatalf("only one message should be replayed, got %d", v)
	case <-time.After(200 * time.Millisecond):
	}

	as.Shutdown()
}
