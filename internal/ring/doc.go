// Package ring models the token ring of a range-partitioned cluster. Token
// ranges wrap around the signed 64-bit token space, and a ring of virtual
// nodes maps each range to its preferred replicas.
package ring
