package progress

import (
	"context"
	"fmt"
)

// ExampleChannel shows a listener following a job's progress until completion.
func ExampleChannel() {
	ch := NewChannel(0.0, nil)
	var sub Subscription
	sub = ch.Subscribe(func(_ context.Context, v float64) error {
		fmt.Printf("progress: %.2f\n", v)
		if v >= 1 {
			ch.Unsubscribe(sub)
		}
		return nil
	})

	ctx := context.Background()
	ch.Publish(ctx, 0.5)
	ch.Publish(ctx, 1)
	ch.Publish(ctx, 1)

	fmt.Printf("listeners left: %d\n", ch.Len())
	// Output:
	// progress: 0.50
	// progress: 1.00
	// listeners left: 0
}
