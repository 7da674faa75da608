// Package watcher restages the package directory whenever the build output,
// the scripts tree or the native sources change.
//
// Filesystem events are debounced so a build writing many files triggers a
// single restage. Restages run one at a time on the watch loop goroutine.
package watcher
