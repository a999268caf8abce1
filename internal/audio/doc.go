// Package audio turns encoded speech into gap-free sequential playback.
//
// Encoded chunks are decoded to PCM with beep, queued in arrival order and
// played one after another through a process-wide output (oto on real
// hardware, a simulated output in tests and CI). Every playing buffer is
// guarded by a watchdog so a missing completion signal can never stall the
// queue.
package audio
