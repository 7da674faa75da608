//go:build mage

// Build tasks for systemml-stager. Run `mage -l` to list targets.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName    = "systemml-stager"
	versionModule = "github.com/systemml/systemml-stager/internal/version"
)

// Default is run when mage is invoked without a target.
var Default = Build

// Build compiles the stager into ./bin with version metadata.
func Build() error {
	mg.Deps(Tidy)

	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		commit = "none"
	}

	ver := os.Getenv("VERSION")
	if ver == "" {
		ver = "0.1.0"
	}

	ldflags := strings.Join([]string{
		"-s", "-w",
		fmt.Sprintf("-X %s.Version=%s", versionModule, ver),
		fmt.Sprintf("-X %s.Commit=%s", versionModule, commit),
		fmt.Sprintf("-X %s.BuildTime=%s", versionModule, time.Now().UTC().Format(time.RFC3339)),
	}, " ")

	return sh.RunV("go", "build", "-ldflags", ldflags, "-o", binaryPath(), "./cmd/"+binaryName)
}

// Tidy syncs go.mod with the imports.
func Tidy() error {
	return sh.Run("go", "mod", "tidy")
}

// Test runs the unit and integration tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Stage builds the binary and stages the python package from src/main/python
// of the SystemML checkout given in SYSTEMML_HOME.
func Stage() error {
	mg.Deps(Build)

	home := os.Getenv("SYSTEMML_HOME")
	if home == "" {
		return mg.Fatal(2, "SYSTEMML_HOME must point at a SystemML checkout")
	}

	bin, err := filepath.Abs(binaryPath())
	if err != nil {
		return err
	}

	pythonDir := filepath.Join(home, "src", "main", "python")
	if err = os.Chdir(pythonDir); err != nil {
		return err
	}

	return sh.RunV(bin, "stage")
}

// Clean removes build outputs.
func Clean() error {
	return sh.Rm("bin")
}

func binaryPath() string {
	name := binaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	return filepath.Join("bin", name)
}
