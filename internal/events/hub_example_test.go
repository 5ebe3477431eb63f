package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExampleHub_Emit demonstrates emitting an event and flushing via Close.
func ExampleHub_Emit() {
	var completed int
	sink := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageCompleted {
				completed++
			}
		}
		return nil
	})
	hub := NewHub(Config{MaxBatchEvents: 10, MaxBatchWait: time.Second}, sink)

	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	hub.Emit(Event{RunID: id, TS: time.Unix(0, 0), Stage: StageStarted, Scraper: "jumbo"})
	hub.Emit(Event{RunID: id, TS: time.Unix(60, 0), Stage: StageCompleted, Scraper: "jumbo", Download: "jumbo_1.csv"})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("runs completed: %d\n", completed)
	// Output:
	// runs completed: 1
}
