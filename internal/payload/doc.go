// Package payload converts attribute maps to and from the opaque payload
// bytes stored in dictionary records. Attributes are held in a
// google.protobuf.Struct, so payloads written by one client can be read by
// any protobuf-aware consumer.
package payload
