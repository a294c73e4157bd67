package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Directed notes between agents",
}

var noteSendCmd = &cobra.Command{
	Use:   "send [to] [body]",
	Short: "Send a note to another agent",
	Long: `Send a directed note. Notes can expire (--ttl) and thread onto an
earlier note (--reply-to).

Example:
  coordctl note send builder "configs are frozen until the migration lands" --ttl 2h`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		ttl, _ := flags.GetDuration("ttl")
		replyTo, _ := flags.GetString("reply-to")

		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		note, err := ch.SendNote(args[0], args[1], replyTo, ttl)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Note %s sent to %s\n", note.ID, note.To)
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list [agent]",
	Short: "List unexpired notes for an agent (default: this agent)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ch, cfg, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		agent := cfg.AgentName
		if len(args) == 1 {
			agent = args[0]
		}

		notes, err := ch.ListNotes(agent)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if len(notes) == 0 {
			cmd.Printf("No notes for %s.\n", agent)
			return
		}

		for _, note := range notes {
			thread := ""
			if note.ReplyTo != "" {
				thread = "  ↳ " + note.ReplyTo
			}
			expiry := ""
			if note.ExpiresAt != nil {
				expiry = "  expires " + note.ExpiresAt.Format(time.RFC3339)
			}
			cmd.Printf("%s  %sfrom %s%s (%s ago)%s%s\n  %s\n",
				note.ID, colorDim, note.From, colorReset, relativeTime(note.CreatedAt), thread, expiry, note.Body)
		}
	},
}

var noteArchiveCmd = &cobra.Command{
	Use:   "archive [note_id]",
	Short: "Move a note out of the inbox",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		if err := ch.ArchiveNote(args[0]); err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Note %s archived\n", args[0])
	},
}

func init() {
	noteSendCmd.Flags().Duration("ttl", 0, "Expire the note after this long (0 = never)")
	noteSendCmd.Flags().String("reply-to", "", "Note id this one replies to")

	noteCmd.AddCommand(noteSendCmd)
	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteArchiveCmd)
	rootCmd.AddCommand(noteCmd)
}
