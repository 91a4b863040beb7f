// Package log wraps zerolog with the conventions relayd's roles share: a
// single global Logger initialized once at startup, and small
// With*-style constructors for attaching the field each role cares about
// (component, worker slot, connection id).
package log
