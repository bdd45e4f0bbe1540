package emc_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pior/emc"
	"github.com/pior/emc/text"
)

func Example() {
	client := emc.NewClient("127.0.0.1:11211", emc.Config{})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := client.Set(ctx, text.Item{Key: "greeting", Value: []byte("hello")}, 0, false)
	if err != nil {
		log.Fatal(err)
	}

	item, err := client.Get(ctx, "greeting")
	switch {
	case errors.Is(err, text.ErrItemNotFound):
		fmt.Println("miss")
	case err != nil:
		log.Fatal(err)
	default:
		fmt.Println(string(item.Value))
	}
}

func ExampleClient_CompareAndSwap() {
	client := emc.NewClient("127.0.0.1:11211", emc.Config{})
	defer client.Close()
	ctx := context.Background()

	item, err := client.Gets(ctx, "counter")
	if err != nil {
		log.Fatal(err)
	}

	item.Value = append(item.Value, '!')
	err = client.CompareAndSwap(ctx, item, 0, false)
	if errors.Is(err, text.ErrCASConflict) {
		fmt.Println("modified concurrently, retry")
	}
}

func ExampleClient_SetPipelining() {
	client := emc.NewClient("127.0.0.1:11211", emc.Config{})
	defer client.Close()
	ctx := context.Background()

	client.SetPipelining(true)
	for i := range 1000 {
		item := text.Item{Key: fmt.Sprintf("key:%d", i), Value: []byte("value")}
		if err := client.Set(ctx, item, 0, true); err != nil {
			log.Fatal(err)
		}
	}

	// One round trip confirms the server processed the whole batch.
	if err := client.FlushPipeline(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Println(client.ClientStats().RoundTrips)
}

func ExampleNewCircuitBreakerConfig() {
	client := emc.NewClient("127.0.0.1:11211", emc.Config{
		NewCircuitBreaker: emc.NewCircuitBreakerConfig(
			3,              // requests allowed through when half-open
			time.Minute,    // counts reset period
			10*time.Second, // open period
		),
	})
	defer client.Close()

	_, err := client.Version(context.Background())
	fmt.Println(err == nil, client.CircuitBreakerState())
}
