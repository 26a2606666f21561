// Package replication derives table ownership from the token ring.
//
// RingState places replicas SimpleStrategy-style: a range is owned by the
// node holding its end token and copied to the next distinct nodes
// clockwise, up to the keyspace's replication factor. It serves as the
// ownership source for repair.StateFactory.
package replication
