package shell

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/enterstudio/subscription-manager/internal/utils/logger"
)

var (
	HostPath string = ""
)

// Commands are resolved to absolute paths before execution so that a
// poisoned PATH cannot redirect them.
var commandMap = map[string]string{
	"bash": "/usr/bin/bash",
	"cat":  "/usr/bin/cat",
	"rpm":  "/usr/bin/rpm",
	"sh":   "/bin/sh",
}

func verifyCmdWithFullPath(cmd string) (string, error) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return cmd, nil
	}
	bin := fields[0]
	fullPath, ok := commandMap[bin]
	if !ok {
		return "", fmt.Errorf("command %s not found in commandMap", bin)
	}
	fields[0] = fullPath
	return strings.Join(fields, " "), nil
}

// GetFullCmdStr prepares a command string with necessary prefixes
func GetFullCmdStr(cmdStr string, sudo bool, chrootPath string) (string, error) {
	log := logger.Logger()

	fullPathCmdStr, err := verifyCmdWithFullPath(cmdStr)
	if err != nil {
		return fullPathCmdStr, fmt.Errorf("failed to verify command with full path: %w", err)
	}

	var fullCmdStr string
	switch {
	case chrootPath != HostPath:
		if _, err := os.Stat(chrootPath); os.IsNotExist(err) {
			return fullPathCmdStr, fmt.Errorf("chroot path %s does not exist", chrootPath)
		}
		fullCmdStr = "sudo chroot " + chrootPath + " " + fullPathCmdStr
		log.Debugf("Chroot Exec: [" + fullPathCmdStr + "]")
	case sudo:
		fullCmdStr = "sudo " + fullPathCmdStr
		log.Debugf("Exec: [sudo " + fullPathCmdStr + "]")
	default:
		fullCmdStr = fullPathCmdStr
		log.Debugf("Exec: [" + fullPathCmdStr + "]")
	}

	return fullCmdStr, nil
}

// ExecCmd executes a command and returns its combined output
func ExecCmd(cmdStr string, sudo bool, chrootPath string) (string, error) {
	log := logger.Logger()
	fullCmdStr, err := GetFullCmdStr(cmdStr, sudo, chrootPath)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	cmd := exec.Command("bash", "-c", fullCmdStr)
	output, err := cmd.CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Infof(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	if outputStr != "" {
		log.Debugf(outputStr)
	}
	return outputStr, nil
}
