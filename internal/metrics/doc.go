// Package metrics counts pipeline outcomes on a private Prometheus registry and
// flushes them to a node-exporter textfile, since the CLI is too short-lived to
// be scraped.
package metrics
