package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cdoweather/cdoweather/internal/etl"
	"github.com/cdoweather/cdoweather/internal/worker"
)

type fakeRunner struct {
	calls atomic.Int64
	err   error
	ran   chan struct{}
}

func (r *fakeRunner) Run(_ context.Context) (*etl.RunResult, error) {
	r.calls.Add(1)
	if r.ran != nil {
		r.ran <- struct{}{}
	}
	if r.err != nil {
		return &etl.RunResult{RunID: "run"}, r.err
	}
	return &etl.RunResult{RunID: "run", APICallCount: 3}, nil
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

func newHandler(t *testing.T, runner etl.Runner, pinger worker.Pinger) *worker.TriggerHandler {
	t.Helper()
	h, err := worker.NewTriggerHandler(worker.HandlerConfig{
		Runs:   runner,
		Pinger: pinger,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return h
}

func TestNewTriggerHandler_RequiresRunner(t *testing.T) {
	_, err := worker.NewTriggerHandler(worker.HandlerConfig{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, worker.ErrMissingRunner)
}

func TestTriggerHandler_Process(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		body      string
		runErr    error
		pingErr   error
		wantErr   error
		permanent bool
		wantRuns  int64
	}{
		{name: "fetch run", body: `{"job_type":"fetch_run"}`, wantRuns: 1},
		{name: "fetch run fails", body: `{"job_type":"fetch_run"}`, runErr: boom, wantErr: boom, wantRuns: 1},
		{name: "run in progress", body: `{"job_type":"fetch_run"}`, runErr: etl.ErrRunInProgress, wantRuns: 1},
		{name: "health check", body: `{"job_type":"health_check"}`},
		{name: "health check fails", body: `{"job_type":"health_check"}`, pingErr: boom, wantErr: boom},
		{name: "unknown job", body: `{"job_type":"provider_refresh"}`, wantErr: worker.ErrUnknownJobType, permanent: true},
		{name: "malformed", body: `not json`, wantErr: worker.ErrMalformedMessage, permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runErr}
			h := newHandler(t, runner, fakePinger{err: tt.pingErr})

			err := h.Process(context.Background(), []byte(tt.body))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.permanent, worker.Permanent(err))
			}
			assert.Equal(t, tt.wantRuns, runner.calls.Load())
		})
	}
}

func TestTriggerHandler_HealthCheckWithoutPinger(t *testing.T) {
	h := newHandler(t, &fakeRunner{}, nil)
	assert.NoError(t, h.Process(context.Background(), []byte(`{"job_type":"health_check"}`)))
}

func TestDefaultConfig(t *testing.T) {
	cfg := worker.DefaultConfig("triggers")
	assert.Equal(t, "triggers", cfg.Subscription)
	assert.Equal(t, 1, cfg.MaxOutstandingMessages)
	assert.Equal(t, time.Hour, cfg.MaxExtension)
}

func TestTriggerHandler_Start(t *testing.T) {
	const (
		topic        = "projects/test-project/topics/etl-triggers"
		subscription = "projects/test-project/subscriptions/etl-triggers"
	)
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	_, err := srv.GServer.CreateTopic(ctx, &pubsubpb.Topic{Name: topic})
	require.NoError(t, err)
	_, err = srv.GServer.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:               subscription,
		Topic:              topic,
		AckDeadlineSeconds: 10,
	})
	require.NoError(t, err)

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	runner := &fakeRunner{ran: make(chan struct{}, 1)}
	h := newHandler(t, runner, nil)

	srv.Publish(topic, []byte(`{"job_type":"fetch_run"}`), nil)

	recvCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- h.Start(recvCtx, worker.NewSubscriber(client, worker.DefaultConfig(subscription)))
	}()

	select {
	case <-runner.ran:
	case <-time.After(10 * time.Second):
		t.Fatal("trigger message was not processed")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("subscriber did not stop")
	}
	assert.Equal(t, int64(1), runner.calls.Load())
}
