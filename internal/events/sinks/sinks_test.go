package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/scraperhub/internal/events"
	"github.com/JakeFAU/scraperhub/internal/history"
	"github.com/JakeFAU/scraperhub/internal/publisher/memory"
)

func runEvents(scraper string, final events.Stage) (uuid.UUID, []events.Event) {
	id := uuid.New()
	start := time.Unix(1700000000, 0).UTC()
	done := events.Event{
		RunID:   id,
		TS:      start.Add(30 * time.Second),
		Stage:   final,
		Session: "sess",
		Owner:   "ann",
		Scraper: scraper,
		Dur:     30 * time.Second,
	}
	if final == events.StageCompleted {
		done.Download = scraper + "_1.csv"
	} else {
		done.Note = "timeout"
	}
	return id, []events.Event{
		{RunID: id, TS: start, Stage: events.StageStarted, Session: "sess", Owner: "ann", Scraper: scraper},
		done,
	}
}

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	_, ok := runEvents("jumbo", events.StageCompleted)
	_, failed := runEvents("jumbo", events.StageFailed)
	ctx := context.Background()

	require.NoError(t, sink.Consume(ctx, []events.Event{ok[0], failed[0], ok[0]}))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.jobsStarted.WithLabelValues("jumbo")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsRunning))

	require.NoError(t, sink.Consume(ctx, []events.Event{ok[1], failed[1], ok[1]}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("jumbo", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("jumbo", "error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 2, testutil.CollectAndCount(sink.jobRuntime))

	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestStoreSinkPersistsRuns(t *testing.T) {
	t.Parallel()

	store := history.NewMemoryStore()
	sink := NewStoreSink(store, nil)
	ctx := context.Background()

	okID, ok := runEvents("jumbo", events.StageCompleted)
	failID, failed := runEvents("jumbo-lite", events.StageFailed)
	require.NoError(t, sink.Consume(ctx, append(ok, failed...)))

	run, err := store.GetRun(ctx, okID)
	require.NoError(t, err)
	require.Equal(t, history.StatusSucceeded, run.Status)
	require.Equal(t, "jumbo_1.csv", run.Download)
	require.Equal(t, "ann", run.Owner)

	run, err = store.GetRun(ctx, failID)
	require.NoError(t, err)
	require.Equal(t, history.StatusFailed, run.Status)
	require.Equal(t, "timeout", run.Error)

	// A terminal event for an unknown run is logged, not fatal.
	_, orphan := runEvents("jumbo", events.StageFailed)
	require.NoError(t, sink.Consume(ctx, orphan[1:]))
}

type failingStore struct {
	history.Store
}

func (failingStore) StartRun(context.Context, history.Run) error {
	return errors.New("db down")
}

func TestStoreSinkSurfacesErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(failingStore{}, nil)
	_, batch := runEvents("jumbo", events.StageCompleted)
	require.ErrorContains(t, sink.Consume(context.Background(), batch), "db down")
}

func TestPublisherSinkPublishesTerminalEvents(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublisherSink(pub, nil)

	id, batch := runEvents("jumbo", events.StageCompleted)
	require.NoError(t, sink.Consume(context.Background(), batch))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "jumbo", msgs[0].Key)
	note, ok := msgs[0].Payload.(Notification)
	require.True(t, ok)
	require.Equal(t, id.String(), note.RunID)
	require.Equal(t, "completed", note.Status)
	require.Equal(t, "jumbo_1.csv", note.Download)
	require.InDelta(t, 30.0, note.Seconds, 1e-9)
}

func TestPublisherSinkReportsBrokerErrors(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("broker down"))
	sink := NewPublisherSink(pub, nil)

	_, batch := runEvents("jumbo", events.StageFailed)
	require.ErrorContains(t, sink.Consume(context.Background(), batch), "broker down")
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	_, batch := runEvents("jumbo", events.StageFailed)
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "run started", entries[0].Message)
	require.Equal(t, "run failed", entries[1].Message)
	require.Equal(t, "timeout", entries[1].ContextMap()["note"])
}
