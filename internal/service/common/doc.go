// Package common holds helpers shared by several services.
//
// It detects the current system actor (hostname/username) for the manifest
// audit trail and manages the run marker that keeps two stager runs from
// touching the same package directory at once.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
