// Package fanout runs one call per peer in parallel and reports how many
// succeeded. Anti-entropy rounds use it to reach several peers at once.
package fanout
