// Package manager owns the components of a process and the connections
// between their interfaces.
//
// A connection goes Unconnected -> Binding -> Connected, or Binding ->
// BindFailed when a required function or event handler of the client has no
// counterpart on the server. A failed attempt leaves nothing bound and is not
// kept in the connection list.
//
//	m := manager.New(manager.WithLogger(logger), manager.WithMetrics(registry))
//	_ = m.AddComponent(generator)
//	_ = m.AddComponent(collector)
//	conn, err := m.Connect(ctx, manager.ConnectionSpec{
//		ClientComponent: "collector", ClientInterface: "Source",
//		ServerComponent: "sine", ServerInterface: "Main",
//	})
//	_ = m.CreateAll(ctx)
//	_ = m.StartAll(ctx)
//	defer m.Shutdown(5 * time.Second)
//
// Lifecycle fan-out (CreateAll, StartAll, SuspendAll, KillAll) runs every
// component in parallel and reports all failures together.
package manager
