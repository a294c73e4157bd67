package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Manage advisory scope locks",
	Long: `Manage advisory scope locks. A lock declares intent over paths relative
to the coordination root; scopes are exact paths, directory prefixes, or
globs (* matches one segment, ** any depth). Locks are cooperative: every
well-behaved mutator checks them, nothing enforces them.`,
}

var lockCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a lock over one or more scopes",
	Long: `Create an advisory lock. The TTL is mandatory; expired locks are ignored
by every check, so a crashed holder never wedges the tree.

Example:
  coordctl lock create --mode exclusive --scope "configs/**" --ttl 30m --note "schema migration"`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		mode, _ := flags.GetString("mode")
		scopes, _ := flags.GetStringSlice("scope")
		ttl, _ := flags.GetDuration("ttl")
		note, _ := flags.GetString("note")

		if len(scopes) == 0 {
			cmd.Println("Error: at least one --scope is required")
			return
		}

		registry, cfg, err := lockRegistry()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		lock, err := registry.Create(mode, scopes, cfg.AgentName, ttl, note)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Lock created!\nID: %s\nExpires: %s\n", lock.ID, lock.ExpiresAt.Format(time.RFC3339))
	},
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active locks",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")

		registry, _, err := lockRegistry()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		locks, err := registry.List()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if !all {
			active, err := registry.Active()
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return
			}
			locks = active
		}
		if len(locks) == 0 {
			cmd.Println("No locks.")
			return
		}

		now := time.Now().UTC()
		for _, lock := range locks {
			state := colorGreen + "active" + colorReset
			if lock.Expired(now) {
				state = colorDim + "expired" + colorReset
			}
			cmd.Printf("%s  %s  %s  by=%s  scopes=%v\n", lock.ID, state, lock.Mode, lock.CreatedBy, lock.Scopes)
		}
	},
}

var lockShowCmd = &cobra.Command{
	Use:   "show [lock_id]",
	Short: "Show one lock",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		registry, _, err := lockRegistry()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		lock, err := registry.Get(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		cmd.Printf("%sID:%s        %s\n", colorDim, colorReset, lock.ID)
		cmd.Printf("%sMode:%s      %s\n", colorDim, colorReset, lock.Mode)
		cmd.Printf("%sScopes:%s    %v\n", colorDim, colorReset, lock.Scopes)
		cmd.Printf("%sBy:%s        %s\n", colorDim, colorReset, lock.CreatedBy)
		cmd.Printf("%sCreated:%s   %s\n", colorDim, colorReset, lock.CreatedAt.Format(time.RFC3339))
		cmd.Printf("%sExpires:%s   %s\n", colorDim, colorReset, lock.ExpiresAt.Format(time.RFC3339))
		if lock.Note != "" {
			cmd.Printf("%sNote:%s      %s\n", colorDim, colorReset, lock.Note)
		}
	},
}

var lockRemoveCmd = &cobra.Command{
	Use:   "remove [lock_id]",
	Short: "Remove a lock (idempotent)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		registry, _, err := lockRegistry()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		if err := registry.Remove(args[0]); err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Lock %s removed\n", args[0])
	},
}

var lockCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Check whether a path is covered by an active lock",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		registry, _, err := lockRegistry()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		blocking, err := registry.Blocking(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if blocking == nil {
			cmd.Printf("%s✓%s %s is free\n", colorGreen, colorReset, args[0])
			return
		}
		cmd.Printf("%s✗%s %s is blocked by lock %s (held by %s, expires %s)\n",
			colorRed, colorReset, args[0], blocking.ID, blocking.CreatedBy,
			blocking.ExpiresAt.Format(time.RFC3339))
	},
}

func init() {
	lockCreateCmd.Flags().StringP("mode", "m", "exclusive", "Lock mode label (informational)")
	lockCreateCmd.Flags().StringSliceP("scope", "s", []string{}, "Path, prefix or glob relative to the root (repeatable)")
	lockCreateCmd.Flags().Duration("ttl", 15*time.Minute, "How long the lock stays active")
	lockCreateCmd.Flags().String("note", "", "Why the lock exists")

	lockListCmd.Flags().Bool("all", false, "Include expired locks")

	lockCmd.AddCommand(lockCreateCmd)
	lockCmd.AddCommand(lockListCmd)
	lockCmd.AddCommand(lockShowCmd)
	lockCmd.AddCommand(lockRemoveCmd)
	lockCmd.AddCommand(lockCheckCmd)
	rootCmd.AddCommand(lockCmd)
}
