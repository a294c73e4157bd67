package cmd

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestTaskResolve_SuspendCompleteHit(t *testing.T) {
	resetViper()
	t.Setenv("COORDPLANE_TASK_INTERCEPT", "true")
	viper.Set("root", t.TempDir())
	viper.Set("agent", "cli-tester")

	// First resolve suspends and prints the fulfillment pointers.
	output := runCommand(t, "task", "resolve", "summarize", "--user", "summarize the postmortem")
	if !strings.Contains(output, "Suspended") {
		t.Fatalf("expected suspension, got: %s", output)
	}
	if !strings.Contains(output, "coordctl task complete") {
		t.Errorf("expected submit command in output, got: %s", output)
	}

	// The pending record shows up in the list.
	output = runCommand(t, "task", "list")
	if !strings.Contains(output, "summarize") {
		t.Errorf("expected pending task in list, got: %s", output)
	}

	// Pull the id out of the list line.
	id := strings.Fields(output)[0]

	// Claim it, complete it inline.
	output = runCommand(t, "task", "claim", id)
	if !strings.Contains(output, "cli-tester") {
		t.Errorf("expected claim under agent name, got: %s", output)
	}

	output = runCommand(t, "task", "complete", id, "--text", "it was DNS")
	if !strings.Contains(output, "Result recorded") {
		t.Errorf("expected completion confirmation, got: %s", output)
	}

	// Same inputs now hit the cache and print the content.
	output = runCommand(t, "task", "resolve", "summarize", "--user", "summarize the postmortem")
	if !strings.Contains(output, "it was DNS") {
		t.Errorf("expected cached result content, got: %s", output)
	}
}

func TestTaskResolve_PassthroughWhenInterceptionDisabled(t *testing.T) {
	resetViper()
	t.Setenv("COORDPLANE_TASK_INTERCEPT", "false")
	viper.Set("root", t.TempDir())

	output := runCommand(t, "task", "resolve", "summarize", "--user", "anything")
	if !strings.Contains(output, "Interception disabled") {
		t.Errorf("expected passthrough message, got: %s", output)
	}
}

func TestTaskResolve_RequiresUserFlag(t *testing.T) {
	resetViper()
	viper.Set("root", t.TempDir())

	output := runCommand(t, "task", "resolve", "summarize", "--user", "")
	if !strings.Contains(output, "--user is required") {
		t.Errorf("expected flag error, got: %s", output)
	}
}

func TestTaskList_Empty(t *testing.T) {
	resetViper()
	viper.Set("root", t.TempDir())

	output := runCommand(t, "task", "list")
	if !strings.Contains(output, "No pending tasks") {
		t.Errorf("expected empty message, got: %s", output)
	}
}

func TestTaskComplete_RequiresContent(t *testing.T) {
	resetViper()
	viper.Set("root", t.TempDir())

	output := runCommand(t, "task", "complete", "some-id", "--file", "", "--text", "")
	if !strings.Contains(output, "one of --file or --text is required") {
		t.Errorf("expected flag error, got: %s", output)
	}
}
