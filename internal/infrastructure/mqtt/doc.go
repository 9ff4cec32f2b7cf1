// Package mqtt delivers telemetry and node status over MQTT.
//
// The node's network link is only up while a cycle delivers, so sessions are
// cycle scoped: the first publish of a cycle opens a clean session and
// Disconnect closes it before the link is taken down. There is no background
// reconnect loop.
//
// # Topics
//
//	{prefix}/telemetry/{site}     one JSON batch per delivery, not retained
//	{prefix}/status/{site}        retained cycle report
//	{prefix}/availability/{site}  retained online/offline marker
//
// The availability topic carries the Last Will and Testament. A session that
// ends without Disconnect (the link dropped mid-cycle) leaves
// reason "unexpected_disconnect"; a normal cycle leaves "cycle_complete".
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	sender := mqtt.NewSender(client)
//	err = sender.Send(ctx, batch)
//	client.Disconnect()
package mqtt
