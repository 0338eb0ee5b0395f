package shardline_test

import (
	"fmt"

	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/shardline"
)

// ExampleNew demonstrates how to embed shardline in your application.
func ExampleNew() {
	cfg := shardline.Config{
		Token:      "bot-token",
		ShardCount: 2,
		Intents:    protocol.IntentGuilds | protocol.IntentGuildMessages,
	}

	gw, err := shardline.New(cfg)
	if err != nil {
		fmt.Printf("failed to create shardline: %v\n", err)
		return
	}

	fmt.Println(gw.Status())
	// Output: Stopped
}

// Example_withEventHandler demonstrates how to receive shard events.
func Example_withEventHandler() {
	handler := &myEventHandler{}

	gw, err := shardline.New(shardline.Config{Token: "bot-token"}, shardline.WithEventHandler(handler))
	if err != nil {
		fmt.Printf("failed to create shardline: %v\n", err)
		return
	}

	_ = gw
}

// myEventHandler implements shardline.EventHandler.
type myEventHandler struct {
	shardline.BaseEventHandler // Embed for no-op defaults
}

func (h *myEventHandler) OnStateChange(event shardline.StateChangeEvent) {
	fmt.Printf("State changed: %s -> %s (reason: %s)\n",
		event.Previous, event.Current, event.Reason)
}

func (h *myEventHandler) OnShardError(event shardline.ShardErrorEvent) {
	fmt.Printf("Shard %s stopped: %s: %v\n", event.Shard, event.Kind, event.Err)
}
