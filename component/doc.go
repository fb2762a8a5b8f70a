// Package component provides the building blocks of an mts application:
// components, the interfaces they provide and require, and their lifecycle.
//
// # Overview
//
// A component owns named provided interfaces (commands and events it offers),
// required interfaces (function slots and event handlers it needs) and state
// tables. Components never call each other directly. A required interface is
// connected to a provided interface of another component, which binds each
// function to the like-named command and registers each event handler as an
// observer of the like-named event.
//
// Two kinds of component exist:
//
//   - Component is passive. It has no goroutine; commands run in the caller
//     unless the interface is explicitly queued.
//   - Task owns a goroutine. Commands posted by clients are queued in a
//     per-client mailbox and executed at the start of each cycle, so the
//     component's state is only touched by its own goroutine.
//
// # Provided interfaces
//
// Commands are registered with typed helpers:
//
//	main, _ := task.AddInterfaceProvided("Main")
//	_, _ = component.AddCommandRead(main, "GetPosition", func(ctx context.Context) (Position, error) {
//		return g.position, nil
//	})
//	_, _ = component.AddCommandWrite(main, "SetGain", func(ctx context.Context, gain float64) error {
//		g.gain = gain
//		return nil
//	})
//	moved, _ := component.AddEventWrite[Position](main, "Moved")
//
// Read and QualifiedRead commands run in the caller by default and should
// only read state; pass Queued to serialize them with the owner's cycle.
// Every other shape is queued when the interface's policy queues commands.
//
// Each client obtains its own EndUserInterface through GetEndUserInterface.
// The view owns the client's mailbox, so one slow or flooding client cannot
// reorder or starve another client's calls. Within a mailbox, calls execute in
// the order they were posted.
//
// # Required interfaces
//
//	source, _ := c.AddInterfaceRequired("Source")
//	getPosition := command.NewReadFunction[Position]()
//	_ = source.AddFunction("GetPosition", getPosition, component.Required)
//	_ = component.AddEventHandlerWrite(source, "Moved", c.onMoved, component.EventQueued)
//
// ConnectTo binds everything or nothing: all results are collected, and when
// a Required element fails the bindings made so far are undone and the error
// wraps errors.ErrBindFailed naming every failure. Optional elements that do
// not bind are logged at debug level and left unbound; calling them returns
// errors.ErrUnbound.
//
// A required interface asks for the view named by ClientName, "owner:name".
// Only one required interface can be bound through a view at a time. A killed
// component hands out no views, so connecting to it fails with
// errors.ErrInvalidTransition.
//
// # Lifecycle
//
//	Constructed --Create--> Ready --Start--> Active
//	                         ^                 |
//	                         +----Suspend------+
//	Constructed, Ready, Active --Kill--> Finishing --> Finished
//
// Create runs the behavior's Startup, Start requires every Required required
// interface to be connected, Kill runs Cleanup and closes all mailboxes.
// Concrete components embed *Component or *Task and pass themselves with
// WithBehavior so the lifecycle reaches their Startup, Run and Cleanup.
//
// A Task with a period runs a cycle on every tick. With period zero it runs a
// cycle whenever a call is posted to one of its mailboxes. NewContinuousTask
// starts the next cycle as soon as the previous one returns.
//
// # Logging
//
// Components log through log/slog with a "component" attribute. WithLogMirror
// additionally publishes records at info level and above to NATS on
// logs.<process>.<component>.
package component
