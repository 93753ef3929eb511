/*
Package workspace manages per-task filesystem workspaces.

Each task owns one directory under the workspaces root, bind-mounted into
its agent container at /workspace and kept across iterations. The package
also harvests deliverables: text files the agent produced, filtered
through skip lists and size ceilings, returned as a name-to-content map
for the iteration output row.
*/
package workspace
