// Package service assembles an mts process from its configuration.
//
// Build turns a config.Config into a running graph of components:
//
//   - every enabled component is created through its class in the
//     classregister and configured from its raw settings
//   - every import becomes a proxy component standing in for a provided
//     interface of another process, named "<component>.proxy" by default
//   - every declared connection is established through the manager, with
//     retries for transient failures
//   - every export is served to other processes by a proxy server
//   - the inspection gateway is created when http.addr is set
//
// Start then creates and starts all components and opens the outer surfaces.
// Stop tears down in the reverse order: gateway, exports, imports, then the
// components themselves.
//
//	proc, err := service.Build(ctx, cfg, service.Dependencies{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	return proc.Run(ctx)
//
// Component health is tracked by a health.Monitor fed from the manager's
// state and connection hooks; Process.Health aggregates it with the state
// of the NATS connection.
package service
