// Package repair computes what one replica is missing relative to another
// and pushes those records to stale peers. Diff yields the delta a peer
// needs, and Repairer ships it asynchronously.
package repair
