// Package avr maintains the live session with the receiver.
//
// Three layers build on the protocol and device packages:
//
//   - commandQueue serializes outbound commands and correlates each query
//     with the status datagram that answers it. At most one reply-expecting
//     command is in flight at a time; set commands complete on write.
//
//   - Manager owns the TCP connection: dialing, the read loop, the write
//     loop with inter-write settle delay, command expiry, and automatic
//     reconnection with exponential backoff. On every disconnect it fails
//     pending commands and invalidates the state mirror, since the device
//     may change state while unreachable.
//
//   - Client is the public facade: typed getters and setters for power,
//     volume, input and mute, state refresh on connect and power-on, and
//     subscription hooks for state changes.
//
// All types are safe for concurrent use.
package avr
