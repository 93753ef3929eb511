// Package client provides HTTP clients for the control-plane and
// image-builder services. Temporal activities and the CLI use these
// rather than reaching into the store directly.
package client
