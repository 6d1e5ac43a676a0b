package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/todorun/internal/config"
	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/secrets"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	srv, err := StartEmbedded(5 * time.Second)
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return NewBus(nc, "", nil)
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Message{}
}

func TestSubject(t *testing.T) {
	b := NewBus(nil, "", nil)
	assert.Equal(t, "runs.abc.task_start", b.Subject("abc", orchestrator.EventTaskStart))

	b = NewBus(nil, "todo", nil)
	assert.Equal(t, "todo.abc.complete", b.Subject("abc", orchestrator.EventComplete))
}

func TestPublish_RejectsSubjectTokens(t *testing.T) {
	b := newTestBus(t)
	for _, id := range []string{"", "a.b", "a*", "a>", "a b"} {
		err := b.Publish(id, orchestrator.Event{Type: orchestrator.EventRunStart})
		assert.ErrorIs(t, err, ErrInvalidSessionID, id)

		_, err = b.Subscribe(id)
		assert.ErrorIs(t, err, ErrInvalidSessionID, id)
	}
}

func TestObserver_DeliversRunInOrder(t *testing.T) {
	b := newTestBus(t)
	sub, err := b.Subscribe("s1")
	require.NoError(t, err)
	defer sub.Close()

	other, err := b.Subscribe("s2")
	require.NoError(t, err)
	defer other.Close()

	started := task.Task{ID: 1, Title: "a", Status: task.StatusInProgress}
	finished := started
	finished.Status = task.StatusDone
	finished.Result = &task.Outcome{Status: "done", Output: "ok", Reflection: "fine", ToolsUsed: []string{"calculate"}}
	result := orchestrator.RunResult{
		Summary:    task.Summary{Total: 1, Done: 1},
		ExitReason: orchestrator.ExitCompleted,
		Iterations: 1,
	}

	obs := b.Observer("s1")
	ctx := context.Background()
	obs.Observe(ctx, orchestrator.Event{Type: orchestrator.EventRunStart, Total: 1})
	obs.Observe(ctx, orchestrator.Event{Type: orchestrator.EventTaskStart, Task: &started})
	obs.Observe(ctx, orchestrator.Event{Type: orchestrator.EventTaskComplete, Task: &finished})
	obs.Observe(ctx, orchestrator.Event{Type: orchestrator.EventComplete, Result: &result})
	require.NoError(t, b.Flush())

	msg := receive(t, sub)
	assert.Equal(t, orchestrator.EventRunStart, msg.Type)
	assert.JSONEq(t, `{"total":1}`, string(msg.Data))

	msg = receive(t, sub)
	assert.Equal(t, orchestrator.EventTaskStart, msg.Type)
	var ts TaskStart
	require.NoError(t, json.Unmarshal(msg.Data, &ts))
	assert.Equal(t, started, ts.Task)

	msg = receive(t, sub)
	assert.Equal(t, orchestrator.EventTaskComplete, msg.Type)
	assert.JSONEq(t, `{"task_id":1,"status":"done","output":"ok","reflection":"fine","tools_used":["calculate"]}`, string(msg.Data))

	msg = receive(t, sub)
	assert.Equal(t, orchestrator.EventComplete, msg.Type)
	assert.True(t, Final(msg.Type))
	var c Complete
	require.NoError(t, json.Unmarshal(msg.Data, &c))
	assert.Equal(t, orchestrator.ExitCompleted, c.ExitReason)
	assert.Equal(t, 1, c.Summary.Done)

	select {
	case m := <-other.C:
		t.Fatalf("unexpected event on other session: %s", m.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOrchestratorRunPublishes(t *testing.T) {
	b := newTestBus(t)
	sub, err := b.Subscribe("run")
	require.NoError(t, err)
	defer sub.Close()

	o, err := orchestrator.New(doneGateway{}, nil, orchestrator.WithObserver(b.Observer("run")))
	require.NoError(t, err)
	require.NoError(t, o.Queue().BulkLoad([]task.Record{{Title: "a"}, {Title: "b"}}))

	_, err = o.Execute(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Flush())

	var types []orchestrator.EventType
	for {
		msg := receive(t, sub)
		types = append(types, msg.Type)
		if Final(msg.Type) {
			break
		}
	}
	assert.Equal(t, []orchestrator.EventType{
		orchestrator.EventRunStart,
		orchestrator.EventTaskStart, orchestrator.EventTaskComplete,
		orchestrator.EventTaskStart, orchestrator.EventTaskComplete,
		orchestrator.EventComplete,
	}, types)
}

func TestSubscription_CloseStopsDelivery(t *testing.T) {
	b := newTestBus(t)
	sub, err := b.Subscribe("s")
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestEncode_Error(t *testing.T) {
	data, err := Encode(orchestrator.Event{Type: orchestrator.EventError, Message: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"boom"}`, string(data))
	assert.True(t, Final(orchestrator.EventError))
	assert.False(t, Final(orchestrator.EventTaskStart))
}

func TestEncode_TaskCompleteWithoutResult(t *testing.T) {
	data, err := Encode(orchestrator.Event{
		Type: orchestrator.EventTaskComplete,
		Task: &task.Task{ID: 3, Status: task.StatusFailed},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id":3,"status":"failed","output":"","reflection":"","tools_used":[]}`, string(data))
}

func TestEncode_Malformed(t *testing.T) {
	_, err := Encode(orchestrator.Event{Type: orchestrator.EventTaskStart})
	assert.Error(t, err)
	_, err = Encode(orchestrator.Event{Type: orchestrator.EventComplete})
	assert.Error(t, err)
	_, err = Encode(orchestrator.Event{Type: "bogus"})
	assert.Error(t, err)
}

func TestConnect_Embedded(t *testing.T) {
	b, err := Connect(config.EventsConfig{SubjectPrefix: "x"}, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, b.Healthy())
	assert.Equal(t, "x.s.run_start", b.Subject("s", orchestrator.EventRunStart))
}

type doneGateway struct{}

func (doneGateway) Analyze(context.Context, string) gateway.Analysis { return gateway.Analysis{} }

func (doneGateway) Generate(context.Context, string, gateway.Expertise, []gateway.Clarification) []task.Record {
	return nil
}

func (doneGateway) InterpretEdit(context.Context, string, task.Task) gateway.EditProposal {
	return gateway.EditProposal{}
}

func (doneGateway) Execute(context.Context, task.Task, []string) task.Outcome {
	return task.Outcome{Status: "done", Output: "ok"}
}

func TestPublish_ScrubsTaskOutput(t *testing.T) {
	srv, err := StartEmbedded(5 * time.Second)
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	b := NewBus(nc, "", nil, WithScrubber(scrubber))

	sub, err := b.Subscribe("s")
	require.NoError(t, err)
	defer sub.Close()

	original := &task.Task{ID: 1, Status: task.StatusDone, Result: &task.Outcome{
		Output: "key is sk-abcdefghijklmnopqrstuvwxyz0123456789",
	}}
	require.NoError(t, b.Publish("s", orchestrator.Event{Type: orchestrator.EventTaskComplete, Task: original}))
	require.NoError(t, b.Flush())

	msg := receive(t, sub)
	var tc TaskComplete
	require.NoError(t, json.Unmarshal(msg.Data, &tc))
	assert.Contains(t, tc.Output, "[REDACTED]")
	assert.NotContains(t, tc.Output, "sk-abcdef")
	assert.Contains(t, original.Result.Output, "sk-", "published copy only")
}
