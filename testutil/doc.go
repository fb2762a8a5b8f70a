// Package testutil provides helpers shared by the package tests.
//
// # Transport
//
// MemTransport is an in-process proxy.Transport. Serve and Request pair up on
// exact subjects. Publish records every message so tests can assert on it
// and runs Subscribe handlers synchronously. Close makes every later call fail.
// Two processes sharing one MemTransport talk to each other the way they
// would over NATS:
//
//	tr := testutil.NewMemTransport()
//	server, _ := service.Build(ctx, serverCfg, service.Dependencies{Transport: tr})
//	client, _ := service.Build(ctx, clientCfg, service.Dependencies{Transport: tr})
//
// WaitForMessageCount polls until a subject has seen N published messages.
//
// Use MemTransport for unit tests. Tests that need real NATS behavior use the
// testcontainers harness in natsclient.
//
// # Configuration
//
// ConfigBuilder builds process configurations with method chaining:
//
//	cfg, err := testutil.NewConfigBuilder("lab").
//	    AddSine("wave", nil).
//	    AddCollector("log", filepath.Join(dir, "wave.jsonl")).
//	    Connect("log", "Source", "wave", "Main").
//	    Build()
//
// The result starts from config.Default with the gateway disabled. Build
// returns a copy and leaves validation to the caller.
//
// # Certificates
//
// WriteSelfSignedCert writes a self-signed certificate and key for localhost
// into a directory, usable as server certificate, client certificate and CA.
package testutil
