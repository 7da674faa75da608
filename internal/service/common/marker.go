//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/systemml/systemml-stager/internal/config"
	"github.com/systemml/systemml-stager/internal/logger"
)

const (
	// MarkerFilename marks that a stager run owns the package directory.
	MarkerFilename = ".systemml-stager.lock"

	// markerLifetime is how long a marker is trusted when the process list is unavailable.
	markerLifetime = 30 * time.Second

	// baseExecutable is the stager binary name without platform extension.
	baseExecutable = "systemml-stager"
)

// ErrAlreadyRunning indicates that another stager run owns the package directory.
var ErrAlreadyRunning = errors.New("another stager run is in progress")

// Marker is a held run marker. Release it when the run ends.
type Marker struct {
	// path is the marker file location.
	path string
}

// Guard decides whether a run marker belongs to a live stager process.
type Guard struct {
	// ProcessName is the executable name of competing stager processes.
	ProcessName string
	// processAlive reports whether a process other than ours runs ProcessName.
	processAlive func(name string) (bool, error)
	// pidAlive reports whether the process with the given PID exists.
	pidAlive func(pid int) (bool, error)
}

// NewGuard returns a Guard that looks for other systemml-stager processes.
func NewGuard() *Guard {
	return &Guard{
		ProcessName:  Executable(),
		processAlive: otherProcessAlive,
		pidAlive:     pidAlive,
	}
}

// Executable returns the stager binary name for the current platform.
func Executable() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return baseExecutable + ".exe"
	}

	return baseExecutable
}

// Acquire creates the run marker in dir. A marker left behind by a run that
// is no longer alive is removed first.
func (g *Guard) Acquire(ctx context.Context, dir string) (*Marker, error) {
	path := filepath.Join(dir, MarkerFilename)

	if g.IsRunningNow(ctx, path) {
		return nil, ErrAlreadyRunning
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, config.DefaultFilePermissions)
	if errors.Is(err, os.ErrExist) {
		return nil, ErrAlreadyRunning
	}

	if err != nil {
		return nil, fmt.Errorf("create run marker: %w", err)
	}

	_, err = file.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write run marker: %w", err)
	}

	return &Marker{path: path}, nil
}

// IsRunningNow checks the marker at path and cleans it up if it looks stale.
// The PID recorded in the marker decides when it can be read and looked up.
// Otherwise a marker older than markerLifetime is stale, and a younger one is
// trusted while some other stager process is alive.
func (g *Guard) IsRunningNow(ctx context.Context, path string) bool {
	fileInfo, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	if err != nil {
		logger.WarnKV(ctx, "Unable to read run marker", "path", path, "error", err)
		return false
	}

	if g.ownerAlive(ctx, path, fileInfo.ModTime()) {
		return true
	}

	logger.InfoKV(ctx, "Removing stale run marker", "path", path)

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true
	}

	return false
}

// ownerAlive reports whether the run that wrote the marker may still be going.
func (g *Guard) ownerAlive(ctx context.Context, path string, modTime time.Time) bool {
	if pid, ok := readPID(path); ok {
		alive, err := g.pidAlive(pid)
		if err == nil {
			return alive
		}

		logger.WarnKV(ctx, "Unable to look up marker owner", "pid", pid, "error", err)
	}

	if time.Since(modTime) > markerLifetime {
		return false
	}

	alive, err := g.processAlive(g.ProcessName)
	if err != nil {
		logger.WarnKV(ctx, "Unable to list processes, trusting fresh marker", "error", err)
		return true
	}

	return alive
}

// Release removes the marker. Releasing a nil marker is a no-op.
func (m *Marker) Release() error {
	if m == nil {
		return nil
	}

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run marker: %w", err)
	}

	return nil
}

// readPID returns the PID stored in the marker at path.
func readPID(path string) (int, bool) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

// pidAlive reports whether a process with the given PID exists.
func pidAlive(pid int) (bool, error) {
	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}

// otherProcessAlive looks for a process named name other than this one.
func otherProcessAlive(name string) (bool, error) {
	processList, err := ps.Processes()
	if err != nil {
		return false, err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == name {
			return true, nil
		}
	}

	return false, nil
}
