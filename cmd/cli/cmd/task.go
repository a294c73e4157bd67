package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"coordplane/internal/taskqueue"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and fulfill suspended tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending tasks awaiting fulfillment",
	Run: func(cmd *cobra.Command, args []string) {
		queue, _, err := taskQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		pending, err := queue.ListPending()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if len(pending) == 0 {
			cmd.Println("No pending tasks.")
			return
		}

		for _, p := range pending {
			claimed := "-"
			if p.ClaimedBy != "" {
				claimed = p.ClaimedBy
			}
			cmd.Printf("%s  %s%s%s  claimed_by=%s  %s(%s ago)%s\n",
				p.ID, colorBold, p.Task, colorReset, claimed,
				colorDim, relativeTime(p.CreatedAt), colorReset)
		}
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task_id]",
	Short: "Show a pending task record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue, _, err := taskQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		pending, err := queue.GetPending(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		out, err := json.MarshalIndent(pending, "", "  ")
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Println(string(out))
	},
}

var taskPromptCmd = &cobra.Command{
	Use:   "prompt [task_id]",
	Short: "Render the fulfillment prompt for a pending task",
	Long: `Render the full prompt an external agent needs to fulfill a pending
task: the runbook reference, the recorded messages, and the exact command
that submits the result.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue, _, err := taskQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		prompt, err := queue.Prompt(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Print(prompt)
	},
}

var taskClaimCmd = &cobra.Command{
	Use:   "claim [task_id]",
	Short: "Claim a pending task for this agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue, cfg, err := taskQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		pending, err := queue.Claim(args[0], cfg.AgentName)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Claimed %s as %s\n", pending.ID, pending.ClaimedBy)
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete [task_id]",
	Short: "Submit the result for a pending task",
	Long: `Submit the result document for a pending task. The content comes from
--file or --text. Results are immutable: completing an already-completed
task fails rather than overwriting.

Example:
  coordctl task complete summarize__3f9a... --file result.txt`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		file, _ := flags.GetString("file")
		text, _ := flags.GetString("text")
		notes, _ := flags.GetString("notes")

		if file == "" && text == "" {
			cmd.Println("Error: one of --file or --text is required")
			return
		}
		if file != "" && text != "" {
			cmd.Println("Error: --file and --text are mutually exclusive")
			return
		}

		content := text
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return
			}
			content = string(data)
		}

		queue, cfg, err := taskQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		result, err := queue.WriteResult(args[0], content, cfg.AgentName, notes)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Result recorded for %s (completed by %s)\n", result.ID, result.CompletedBy)
	},
}

var taskResolveCmd = &cobra.Command{
	Use:   "resolve [task]",
	Short: "Resolve a task against the queue",
	Long: `Resolve one unit of work: a cached result prints immediately; otherwise
a pending record is written and the fulfillment instructions print.

Example:
  coordctl task resolve summarize --user "summarize the Q3 postmortem"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		user, _ := flags.GetString("user")
		optionsJSON, _ := flags.GetString("options")

		if user == "" {
			cmd.Println("Error: --user is required")
			return
		}

		var options map[string]any
		if optionsJSON != "" {
			if err := json.Unmarshal([]byte(optionsJSON), &options); err != nil {
				cmd.Printf("Error: invalid --options JSON: %v\n", err)
				return
			}
		}

		queue, _, err := taskQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		messages := []taskqueue.Message{{Role: "user", Content: user}}
		outcome, err := queue.Resolve(args[0], messages, options)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		switch outcome.Kind {
		case taskqueue.OutcomeHit:
			cmd.Print(outcome.Result.Content)
		case taskqueue.OutcomeSuspended:
			cmd.Printf("⏸ Suspended: %s\n", outcome.Pending.ID)
			cmd.Printf("Pending record: %s\n", outcome.Pending.PendingPath)
			cmd.Printf("Result will appear at: %s\n", outcome.Pending.ResultPath)
			cmd.Printf("Submit with: %s\n", outcome.Pending.Resume.SubmitCommand)
		case taskqueue.OutcomePassthrough:
			cmd.Println("Interception disabled (COORDPLANE_TASK_INTERCEPT=false); run the work directly.")
		}
	},
}

func init() {
	taskCompleteCmd.Flags().StringP("file", "f", "", "File containing the result content")
	taskCompleteCmd.Flags().StringP("text", "t", "", "Result content inline")
	taskCompleteCmd.Flags().String("notes", "", "Optional fulfillment notes")

	taskResolveCmd.Flags().StringP("user", "u", "", "User message content (required)")
	taskResolveCmd.Flags().String("options", "", "Task options as a JSON object")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskPromptCmd)
	taskCmd.AddCommand(taskClaimCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskResolveCmd)
	rootCmd.AddCommand(taskCmd)
}
