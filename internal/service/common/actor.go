//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	"github.com/systemml/systemml-stager/internal/repository/manifest"
)

// DetectActor gathers host and user information for the manifest audit trail.
func DetectActor() (*manifest.Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &manifest.Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
