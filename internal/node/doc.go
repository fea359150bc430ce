// Package node runs one dictionary replica: the Service with its logging
// and metrics middlewares, the gRPC transport, the admin HTTP surface, and
// the background anti-entropy and snapshot loops.
package node
