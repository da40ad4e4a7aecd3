// Package jobcontrol provides job control for an interactive command
// interpreter on Linux.
//
// A Manager launches programs in their own process groups, hands the
// controlling terminal to foreground jobs and back, and reconciles child
// state changes (exit, termination by signal, stop, continue) with a Table
// of active Jobs.
//
// Child state changes are collected by a Reaper goroutine driven by SIGCHLD.
// The Reaper only queues raw wait statuses; every table mutation, terminal
// handoff and report happens on the goroutine that calls into the Manager.
package jobcontrol
