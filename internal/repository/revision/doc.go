// Package revision reads the source revision of the project root.
//
// The root is opened with go-git, detecting a .git directory in any parent.
// A root outside a git work tree, or one without commits, has no revision.
package revision
