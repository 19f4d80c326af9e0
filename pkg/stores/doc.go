// Package stores provides the SQLite operation journal. Every management
// round trip is recorded with its address, outcome and failure details,
// grouped under the CLI invocation (run) that issued it.
package stores
