package shell_test

import (
	"strings"
	"testing"

	"github.com/enterstudio/subscription-manager/internal/utils/shell"
)

func TestGetFullCmdStrResolvesKnownCommand(t *testing.T) {
	got, err := shell.GetFullCmdStr("rpm -qa", false, shell.HostPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "/usr/bin/rpm ") {
		t.Errorf("expected resolved rpm path, got %q", got)
	}
}

func TestGetFullCmdStrRejectsUnknownCommand(t *testing.T) {
	_, err := shell.GetFullCmdStr("curl http://example.com", false, shell.HostPath)
	if err == nil {
		t.Error("expected error for command outside commandMap")
	}
}

func TestGetFullCmdStrSudoPrefix(t *testing.T) {
	got, err := shell.GetFullCmdStr("rpm --rebuilddb", true, shell.HostPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "sudo ") {
		t.Errorf("expected sudo prefix, got %q", got)
	}
}

func TestGetFullCmdStrMissingChrootPath(t *testing.T) {
	_, err := shell.GetFullCmdStr("rpm -qa", false, "/does/not/exist")
	if err == nil {
		t.Error("expected error for non-existent chroot path")
	}
}

func TestExecCmdEchoesOutput(t *testing.T) {
	out, err := shell.ExecCmd("sh -c 'printf hello'", false, shell.HostPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("expected output to contain hello, got %q", out)
	}
}
