// Package clock provides a monotonic millisecond timestamp source for
// clients of the dictionary. Timestamps are wall-clock milliseconds that
// never repeat or run backwards within one Clock, and a Clock can be
// advanced past timestamps observed from other replicas.
package clock
