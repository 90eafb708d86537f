// Package process provides the operating-system primitives the fork runtime is
// built on: starting a re-executed copy of the current binary, reaping children
// with their exit status, delivering signals and adjusting the scheduling
// priority of the calling process.
//
// Reaping and priority control are only implemented on Unix platforms. On
// Linux the priority is applied to every thread of the process, because the
// kernel tracks nice values per thread and the Go scheduler runs goroutines on
// many of them. On other Unix systems the process-wide call is used. On
// Windows every primitive reports errors.ErrUnsupported.
package process
