// Package session implements the server side of one live client connection.
//
// A [Session] sends the full snapshot of every monitor when it starts, then
// forwards the current record of each monitor announced on the update topic.
// Every write first passes [CanSend], which checks the [Transport] state at
// the moment of the write, so a connection that closed while a store read
// was in flight is never written to.
//
// Frames come in two shapes selected by [FrameMode]: a typed [Envelope]
// (default) or the legacy bare documents.
package session
