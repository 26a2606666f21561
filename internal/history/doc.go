// Package history provides an in-memory repair history store. Entries are
// kept per table, newest first, and served to repair.StateFactory through
// lazy iterators.
package history
