// Package wire defines the messages replicas exchange and their encoding.
// Messages use the protobuf binary format, written and parsed field by field
// with protowire, and are carried over gRPC by the codec registered under
// the content subtype "lww". The same State encoding is used for snapshot
// files.
package wire
