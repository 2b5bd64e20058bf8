/*
Package metrics exposes counters for decode attempts by format and
outcome, checksum/signature validation failures by format, VFS
resolver cache hit/miss counts, and total bytes read from underlying
streams.

This is a read-only library package. Nothing here starts an HTTP
listener or scrapes anything on an interval — a Collector is built
with NewCollector and its counters can be rendered with DumpText in
the Prometheus text exposition format for a CLI flag to print after a
run finishes. The two CLI tools each record one decode outcome per
run; no decoder, scanner or resolver calls the checksum, cache or
bytes-read recorders, so those counters are never incremented.
*/
package metrics
