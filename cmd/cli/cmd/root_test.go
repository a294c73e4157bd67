package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("COORDPLANE")
	viper.AutomaticEnv()
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error running %v: %v", args, err)
	}
	return stdout.String()
}

func TestRootCommand_ExecuteReturnsNoError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"--help"})
	if err := rootCmd.Execute(); err != nil {
		t.Errorf("root command should execute without error: %v", err)
	}
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	want := []string{"task", "lock", "job", "agent", "note", "memo", "orch"}
	for _, name := range want {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected %q subcommand to be registered", name)
		}
	}
}

func TestExecute_ReturnsError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"unknown-command-xyz"})
	if err := Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestActiveConfig_RootOverride(t *testing.T) {
	resetViper()
	viper.Set("root", "/tmp/somewhere-else")
	viper.Set("agent", "override-agent")

	cfg, err := activeConfig()
	if err != nil {
		t.Fatalf("activeConfig: %v", err)
	}
	if cfg.Root != "/tmp/somewhere-else" {
		t.Errorf("expected root override, got %s", cfg.Root)
	}
	if cfg.AgentName != "override-agent" {
		t.Errorf("expected agent override, got %s", cfg.AgentName)
	}
}

func TestActiveConfig_EnvBinding(t *testing.T) {
	resetViper()
	t.Setenv("COORDPLANE_ROOT", "/tmp/from-env")

	cfg, err := activeConfig()
	if err != nil {
		t.Fatalf("activeConfig: %v", err)
	}
	if !strings.Contains(cfg.Root, "from-env") {
		t.Errorf("expected root from env var, got %s", cfg.Root)
	}
}
