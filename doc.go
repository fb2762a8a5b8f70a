// Package mtscore is a component messaging core: self-contained components
// expose provided interfaces of typed commands and events, declare required
// interfaces naming what they need from others, and are wired together by a
// manager that binds each required element to its provided counterpart.
//
// # Layers
//
//	┌─────────────────────────────────────┐
//	│  cmd/mtsmanager, service, gateway   │  Process assembly, CLI,
//	│                                     │  inspection HTTP/WebSocket
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌─────────────────────────────────────┐
//	│  manager, classregister, proxy      │  Connections, lifecycle fan-out,
//	│                                     │  classes by name, NATS proxies
//	└─────────────────────────────────────┘
//	           ↓ binds
//	┌─────────────────────────────────────┐
//	│  component, command, mailbox,       │  Interfaces, lifecycle,
//	│  statetable                         │  queued execution, history
//	└─────────────────────────────────────┘
//
// A provided interface hands each connected client its own end-user view
// with a private mailbox. Queued commands and events run on the owner's
// thread when it drains its mailboxes; unqueued ones run on the caller's.
// Read commands are unqueued by default and see the owner's state table
// through time-indexed accessors.
//
// # Packages
//
//   - mailbox: bounded FIFO of deferred calls with a post-execution signal
//   - command: the command and event shapes (void, write, read, qualified read,
//     void return, write return), each of which can be disabled
//   - component: provided and required interfaces, the lifecycle state machine,
//     periodic and signal-driven tasks, the NATS log mirror
//   - statetable: circular time-indexed history of typed elements
//   - manager: connection protocol, connection records, graph and lifecycle
//     fan-out over all components
//   - classregister: create components by class name
//   - proxy: export provided interfaces over NATS and import them elsewhere
//   - config, service, gateway, health, metric: running a process
//
// See cmd/mtsmanager for the executable and configs/mts.yaml for an example.
package mtscore
