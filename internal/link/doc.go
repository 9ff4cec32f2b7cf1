// Package link toggles the network path to the collector around each
// delivery cycle.
//
// Two implementations are provided:
//
//   - None, for hosts whose network is always up;
//   - Command, which runs configured argv commands to bring an interface up
//     and down, e.g. "nmcli radio wifi on" / "nmcli radio wifi off", and can
//     optionally verify reachability with a check command.
//
// WithRelease wraps either one so that sessions riding on the link (an MQTT
// connection) are closed before it goes down.
//
// Command mirrors the radio duty cycle of battery powered nodes: the link is
// reset (down, then up) before every drain and dropped again afterwards.
package link
