// Package rpmdb lists the packages currently installed on a system as
// NEVRA strings, either from the live rpm database or from a directory
// of RPM files.
package rpmdb

import (
	"fmt"
	"strings"

	"github.com/enterstudio/subscription-manager/internal/repos"
	"github.com/enterstudio/subscription-manager/internal/utils/logger"
	"github.com/enterstudio/subscription-manager/internal/utils/shell"
)

var log = logger.Logger()

// InstalledSource yields the installed package set. Implementations
// must reflect live state on every call, not a cached snapshot.
type InstalledSource interface {
	InstalledNEVRAs() ([]string, error)
}

// queryFormat keeps the rpm output trivially splittable. EPOCHNUM
// renders a missing epoch as 0 instead of "(none)".
const queryFormat = `%{NAME}|%{EPOCHNUM}|%{VERSION}|%{RELEASE}|%{ARCH}\n`

// Rpmdb reads the installed set from the system rpm database.
// InstallRoot, when set, queries an alternative root.
type Rpmdb struct {
	InstallRoot string
}

// InstalledNEVRAs queries the rpm database fresh on every call.
func (r *Rpmdb) InstalledNEVRAs() ([]string, error) {
	cmdStr := fmt.Sprintf("rpm -qa --qf '%s'", queryFormat)
	if r.InstallRoot != "" {
		cmdStr = fmt.Sprintf("rpm --root %s -qa --qf '%s'", r.InstallRoot, queryFormat)
	}

	output, err := shell.ExecCmd(cmdStr, false, shell.HostPath)
	if err != nil {
		log.Errorf("Failed to query rpm database: %v", err)
		return nil, fmt.Errorf("querying rpm database: %w", err)
	}

	var nevras []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 5 {
			log.Warnf("Skipping unparseable rpm query line: %q", line)
			continue
		}
		// gpg-pubkey pseudo packages have no architecture
		if fields[4] == "(none)" {
			continue
		}
		nevras = append(nevras, repos.FormatNEVRA(fields[0], fields[1], fields[2], fields[3], fields[4]))
	}

	log.Debugf("rpm database lists %d installed packages", len(nevras))
	return nevras, nil
}
