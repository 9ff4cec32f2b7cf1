// Package graphite delivers telemetry batches to a Graphite (carbon)
// collector using the plaintext protocol.
//
// Each measurement becomes one line:
//
//	<prefix><name> <value> <unix-timestamp>\n
//
// A batch is written over its own TCP connection, which is closed once the
// last line is flushed. Nodes spend most of their time with the link down,
// so no connection is held between cycles.
//
// Usage:
//
//	client, err := graphite.New(cfg.Graphite)
//	if err != nil {
//	    return err
//	}
//	err = client.Send(ctx, batch) // satisfies pipeline.Sender
package graphite
