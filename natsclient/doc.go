// Package natsclient wraps a single NATS connection for an mtscore manager
// process.
//
// The client adds a circuit breaker in front of connection attempts, exponential
// backoff between rounds, slog logging and prometheus status metrics. It is the
// transport under three parts of the module:
//
//   - proxy exports provided interfaces through Reply and calls them through Request
//   - component log mirroring publishes entries with Publish
//   - the collector records samples to a JetStream stream (EnsureStream, PublishToStream)
//
// Creating and connecting:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// Request/reply:
//
//	sub, err := client.Reply(ctx, "mts.sine.Main.cmd.GetData", "", func(ctx context.Context, req []byte) []byte {
//	    return handle(ctx, req)
//	})
//	defer client.Unsubscribe(sub)
//
//	resp, err := client.Request(ctx, "mts.sine.Main.cmd.GetData", []byte(`{}`))
//
// # Circuit Breaker
//
// After WithCircuitBreakerThreshold consecutive failures (default 5) the status
// moves to StatusCircuitOpen and every operation fails fast with ErrCircuitOpen.
// After the current backoff the breaker half-opens (StatusDisconnected) and the
// next Connect tries again; the backoff doubles per round up to WithMaxBackoff.
//
// # Testing
//
// NewTestClient starts a NATS container through testcontainers-go and returns a
// connected client. Tests that need it are built with the integration tag.
package natsclient
