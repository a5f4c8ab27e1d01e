package collector

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Command describes how the collector is invoked:
//
//	<Program> <Args...> [<ScriptFlag> <ResourceDir/Script>] <DirFlag> <dir> [<ThresholdFlag> <n>]
//
// The threshold pair is only appended when filtering is enabled (n > 0).
type Command struct {
	Program       string
	Args          []string
	ScriptFlag    string
	Script        string
	ResourceDir   string
	DirFlag       string
	ThresholdFlag string
}

// DefaultCommand runs getData.ps1 through PowerShell, matching the layout of the packaged app.
func DefaultCommand() Command {
	prog := "powershell.exe"
	if runtime.GOOS != "windows" {
		prog = "pwsh"
	}
	return Command{
		Program:       prog,
		Args:          []string{"-ExecutionPolicy", "Unrestricted"},
		ScriptFlag:    "-File",
		Script:        "getData.ps1",
		DirFlag:       "-baseDir",
		ThresholdFlag: "-usageThreshold",
	}
}

// ScriptPath resolves Script against the resource directory. Absolute scripts are returned as-is.
func (c Command) ScriptPath() string {
	s := strings.TrimSpace(c.Script)
	if s == "" || filepath.IsAbs(s) {
		return s
	}
	return filepath.Join(ResourceDir(c.ResourceDir), s)
}

// Argv builds the argument vector for one run. Arguments are passed verbatim:
// os/exec takes care of per-platform quoting, so directories with spaces need no escaping.
func (c Command) Argv(dir string, threshold int) []string {
	out := make([]string, 0, len(c.Args)+6)
	out = append(out, c.Args...)
	if script := c.ScriptPath(); script != "" {
		if c.ScriptFlag != "" {
			out = append(out, c.ScriptFlag)
		}
		out = append(out, script)
	}
	if c.DirFlag != "" {
		out = append(out, c.DirFlag)
	}
	out = append(out, dir)
	if threshold > 0 && c.ThresholdFlag != "" {
		out = append(out, c.ThresholdFlag, strconv.Itoa(threshold))
	}
	return out
}

// ResourceDir returns override when set, otherwise the directory holding the running
// executable, falling back to the working directory.
func ResourceDir(override string) string {
	if d := strings.TrimSpace(override); d != "" {
		return d
	}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}
