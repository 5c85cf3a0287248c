// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/randomizedcoder/go-overlord/internal/supervisor"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks for the given process specs.
func RunAll(specs []supervisor.Spec) *Result {
	result := &Result{
		Checks: make([]Check, 0, len(specs)+2),
		Passed: true,
	}

	// File descriptor check
	fdCheck := checkFileDescriptors(len(specs))
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	// Process limit check
	procCheck := checkProcessLimit(len(specs))
	result.Checks = append(result.Checks, procCheck)
	if !procCheck.Passed {
		result.Passed = false
	}

	// Executable and working directory checks, one per spec
	for _, spec := range specs {
		execCheck := checkExecutable(spec)
		result.Checks = append(result.Checks, execCheck)
		if !execCheck.Passed {
			result.Passed = false
		}

		if spec.Cwd != "" {
			cwdCheck := checkWorkingDir(spec)
			result.Checks = append(result.Checks, cwdCheck)
			if !cwdCheck.Passed {
				result.Passed = false
			}
		}
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(processes int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Each supervised process needs 3 pipes plus scratch FDs
	// Plus supervisor overhead (metrics server, logging, etc.)
	required := processes*10 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d processes)", actual, required, processes),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(processes int) Check {
	// RLIMIT_NPROC is not available on all systems
	// Try to read from /proc instead
	required := processes + 50

	// Read soft limit from /proc/self/limits
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	// Parse "Max processes" line
	actual := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "Max processes") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				if fields[3] == "unlimited" {
					actual = 1000000
				} else {
					fmt.Sscanf(fields[3], "%d", &actual)
				}
			}
			break
		}
	}

	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// checkExecutable verifies the spec's executable can be resolved.
func checkExecutable(spec supervisor.Spec) Check {
	name := "exec:" + spec.Name

	resolved, err := exec.LookPath(spec.Path)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", spec.Path, err),
		}
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s", resolved),
	}
}

// checkWorkingDir verifies the spec's working directory exists.
func checkWorkingDir(spec supervisor.Spec) Check {
	name := "cwd:" + spec.Name

	info, err := os.Stat(spec.Cwd)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", spec.Cwd, err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", spec.Cwd),
		}
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: spec.Cwd,
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch {
	case name == "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case name == "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case strings.HasPrefix(name, "exec:"):
		return "install the executable or use an absolute path"
	case strings.HasPrefix(name, "cwd:"):
		return "create the working directory or fix the path"
	default:
		return "see documentation"
	}
}
