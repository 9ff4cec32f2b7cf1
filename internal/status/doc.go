// Package status publishes a retained report of every delivery cycle so an
// operator can see a node's backlog without reading its logs.
//
// Topic: {prefix}/status/{site}
// QoS: configured publish QoS, Retained: Yes
//
// A report is only published while the link is up; cycles whose link failed
// to connect are visible in the journal instead.
package status
