// Package event carries domain notifications to the outside world.
//
// Operations return notifications instead of publishing them; the
// service builds an Event for each one after the state change commits
// and hands it to the Bus. The bus fans events out to its sinks from a
// single dispatch goroutine: a structured log line, signed webhook
// deliveries, and the websocket stream. Publishing never blocks; when
// the buffer is full the event is dropped and counted.
package event
