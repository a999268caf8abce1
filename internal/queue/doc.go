// Package queue provides the bounded FIFO that sits between the decode
// producer and the playback consumer. Items leave in the order they arrived;
// a full queue makes the producer wait, which bounds how much decoded audio
// is held in memory at once.
package queue
