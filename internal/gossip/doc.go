// Package gossip runs anti-entropy between replicas. A PeerTable tracks
// which peers answered recently, and a Syncer periodically exchanges state
// with a few of them so that every replica eventually holds the merge of
// all writes.
//
// Peer health is inferred only from sync outcomes; there is no separate
// probe protocol and membership is static apart from what the
// configuration seeds.
package gossip
