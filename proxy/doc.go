// Package proxy carries provided interfaces across processes over NATS.
//
// A Server exports a local provided interface. Every command is served on
//
//	<prefix>.<component>.<interface>.cmd.<command>
//
// with a JSON request {"arg": ...} and reply {"result": ..., "error": "...",
// "code": "..."}. Every event is republished on
//
//	<prefix>.<component>.<interface>.evt.<event>
//
// as {"payload": ..., "time": ...}, and the interface description is served on
// <prefix>.<component>.<interface>.describe.
//
// A Client builds a passive local component named "<component>.proxy" with a
// provided interface of the same name as the remote one. Its commands are
// remote stubs declared with RemoteVoid, RemoteWrite, RemoteRead,
// RemoteVoidReturn, RemoteQualified and RemoteWriteReturn, and its events are
// fed from the network by RemoteEventVoid and RemoteEventWrite. Local required
// interfaces connect to it with the ordinary connection protocol, so a
// component cannot tell a remote server from a local one except by latency.
//
// Remote calls complete on the server before the reply is sent: a queued
// command has run in the owner's thread when Execute returns on the client.
package proxy
