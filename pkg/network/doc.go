/*
Package network allocates host ports for deployment containers.

Deployments publish a single container port onto the host out of the fixed
range 9100-9120. The allocator scans the engine's in-use set at allocation
time and returns the lowest free port; an exhausted range is a hard error
surfaced to the start workflow.
*/
package network
