// Package audit delivers domain events to pluggable sinks.
//
// # Components
//
//   - [Event] is implemented by the typed events the Engine emits.
//   - [Sink] consumes events: [NoOpSink], [ChannelSink], [JSONWriterSink],
//     [SlogSink] and [MultiSink] are provided.
//   - [Dispatcher] either forwards synchronously or relays through a
//     buffered goroutine with drop-if-full or block-if-full semantics.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. It does NOT decide which events
// are emitted; the Engine and flow functions do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authcore or any sibling internal package.
package audit
