// Package protocol implements the Anthem x00-series ASCII control dialect.
//
// This package manages:
//   - The fixed property vocabulary (power, volume, input, mute) for zone 1
//   - Encoding typed commands to wire datagrams
//   - Decoding inbound datagrams to typed events
//   - Line framing (datagrams are terminated by ';')
//   - Attenuation/volume/percentage conversions
//
// # Wire Format
//
// The receiver speaks a line-oriented ASCII protocol over TCP. Each datagram
// is a token followed by a value and a ';' terminator:
//
//	P1P1;       zone 1 power on
//	P1VM-40;    zone 1 volume is -40 dB (status)
//	P1V-40;     set zone 1 volume to -40 dB (command)
//	P1V?;       query zone 1 volume
//
// Status datagrams for volume arrive under the P1VM token while the set and
// query forms use P1V. This asymmetry is the receiver's, not ours.
//
// The receiver also emits free-text notices ("Invalid Command",
// "Parameter Out-of-range", "Main Off", "Zone2 Off"). These decode to a
// recognised NoticeError so callers can log and move on.
//
// All functions here are pure; no I/O happens in this package.
package protocol
