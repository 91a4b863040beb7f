// Package events is a small in-process pub/sub broker: dispatch-core
// components Publish, anything that wants to observe the daemon
// Subscribes to a buffered channel. A full subscriber buffer drops the
// event rather than blocking the publisher.
package events
