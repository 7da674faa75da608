// Package manifest implements persistence for the staging manifest.
//
// The FileRepository stores and loads the manifest as YAML on disk. The
// manifest records who staged what, from which source revision, and the
// SHA-512 checksum of every staged file so a later verify can detect drift.
package manifest
