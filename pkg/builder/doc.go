/*
Package builder implements the OpenClaw image builder service.

Agent images are layered incrementally: each approved capability set is
baked into a new image whose FROM line is the task's current image, so a
task's image history reads img1 = base + caps1, img2 = img1 + caps2, and
so on. Versions count prior pending, building, and successful builds for
the task; failed builds never consume a version. Dockerfiles are
persisted per task as Dockerfile.v{N} with a Dockerfile mirror of the
latest, which is also what agents receive in AGENT_DOCKERFILE.

Capability names arrive messy. Normalization splits comma-joined lists,
reroutes known Debian packages (and lib-prefixed pip asks) to apt, and
partitions the rest into apt, pip, npm, and tool installs. Emission is
byte-stable so any version can be reproduced from its capability list.

Deployment images are a separate, minimal lineage: python:3.11-slim plus
packages inferred from the task's agent Dockerfiles, the workspace copied
to /app with agent-internal files skipped, and a path sweep rewriting
/workspace references.

Builds run asynchronously through the docker CLI (build, tag, push
against the configured registry) with state tracked in the in-memory
Registry and served over the HTTP surface:

	POST /build
	POST /build-deployment
	GET  /builds/{id}
	GET  /builds/{id}/logs
	GET  /health

On startup EnsureBaseImage makes the stack self-contained: the shared
base image is looked up locally, pulled from the registry, or built from
the bundled bootstrap Dockerfile and pushed.
*/
package builder
