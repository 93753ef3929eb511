// Package framework stands up a complete in-process control plane for
// end-to-end scenarios: real store, manager, gateway, and REST surface,
// with the workflow engine and container engine replaced by recording
// fakes.
package framework
