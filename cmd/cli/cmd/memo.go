package cmd

import (
	"github.com/spf13/cobra"
)

var memoCmd = &cobra.Command{
	Use:   "memo",
	Short: "Broadcast memos visible to every agent",
}

var memoSendCmd = &cobra.Command{
	Use:   "send [subject] [body]",
	Short: "Post a broadcast memo",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		memo, err := ch.SendMemo(args[0], args[1])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Memo %s posted\n", memo.ID)
	},
}

var memoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all memos",
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		memos, err := ch.ListMemos()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if len(memos) == 0 {
			cmd.Println("No memos.")
			return
		}

		for _, memo := range memos {
			cmd.Printf("%s  %s%s%s  %sfrom %s (%s ago)%s\n  %s\n",
				memo.ID, colorBold, memo.Subject, colorReset,
				colorDim, memo.From, relativeTime(memo.CreatedAt), colorReset, memo.Body)
		}
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign [agent] [task_id]",
	Short: "Record a task assignment for an agent",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		assignment, err := ch.Assign(args[0], args[1])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Assigned %s to %s\n", assignment.TaskID, assignment.Agent)
	},
}

var assignmentsCmd = &cobra.Command{
	Use:   "assignments",
	Short: "List task assignments",
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		assignments, err := ch.ListAssignments()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if len(assignments) == 0 {
			cmd.Println("No assignments.")
			return
		}

		for _, a := range assignments {
			cmd.Printf("%s → %s  %s(by %s, %s ago)%s\n",
				a.Agent, a.TaskID, colorDim, a.CreatedBy, relativeTime(a.CreatedAt), colorReset)
		}
	},
}

func init() {
	memoCmd.AddCommand(memoSendCmd)
	memoCmd.AddCommand(memoListCmd)
	rootCmd.AddCommand(memoCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(assignmentsCmd)
}
