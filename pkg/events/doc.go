/*
Package events provides an in-process event broker for the control plane.

Task lifecycle transitions, capability decisions, builds, and deployment
changes are published here. Subscribers receive events over buffered
channels; per-task history feeds the execution timeline endpoint. The
broker is process-scoped and rebuilds empty on restart, which the durable
rows in storage tolerate.
*/
package events
