package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Agent presence records",
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register [name]",
	Short: "Register (or refresh) this agent's presence record",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		role, _ := cmd.Flags().GetString("role")

		ch, cfg, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		name := cfg.AgentName
		if len(args) == 1 {
			name = args[0]
		}

		agent, err := ch.RegisterAgent(name, role, os.Getpid())
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Registered %s (since %s)\n", agent.Name, relativeTime(agent.RegisteredAt)+" ago")
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		agents, err := ch.ListAgents()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if len(agents) == 0 {
			cmd.Println("No agents registered.")
			return
		}

		for _, agent := range agents {
			role := agent.Role
			if role == "" {
				role = "-"
			}
			cmd.Printf("%s%s%s  role=%s  last_seen=%s ago\n",
				colorBold, agent.Name, colorReset, role, relativeTime(agent.LastSeen))
		}
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show one agent's presence record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		agent, err := ch.GetAgent(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		cmd.Printf("%sName:%s        %s\n", colorDim, colorReset, agent.Name)
		cmd.Printf("%sRole:%s        %s\n", colorDim, colorReset, agent.Role)
		cmd.Printf("%sPID:%s         %d\n", colorDim, colorReset, agent.PID)
		cmd.Printf("%sRegistered:%s  %s\n", colorDim, colorReset, formatTimeWithRelative(&agent.RegisteredAt))
		cmd.Printf("%sLast seen:%s   %s\n", colorDim, colorReset, formatTimeWithRelative(&agent.LastSeen))
	},
}

func init() {
	agentRegisterCmd.Flags().String("role", "", "What this agent does")

	agentCmd.AddCommand(agentRegisterCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentShowCmd)
	rootCmd.AddCommand(agentCmd)
}
