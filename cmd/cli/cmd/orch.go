package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"coordplane/internal/orchestrator"
)

var orchCmd = &cobra.Command{
	Use:   "orch",
	Short: "Talk to the orchestrator mailbox",
}

var orchSendCmd = &cobra.Command{
	Use:   "send [action]",
	Short: "Drop a request in the orchestrator inbox",
	Long: `Drop a request in the orchestrator inbox. With --wait the command polls
for the response; without it the request id prints immediately and the
response can be picked up later from the outbox.

Example:
  coordctl orch send rebalance --payload '{"shard":"eu-1"}' --wait 10s`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		payloadJSON, _ := flags.GetString("payload")
		wait, _ := flags.GetDuration("wait")

		var payload map[string]any
		if payloadJSON != "" {
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
				cmd.Printf("Error: invalid --payload JSON: %v\n", err)
				return
			}
		}

		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		id, resp, err := ch.Send(context.Background(), args[0], payload, wait)
		if err != nil {
			var timeout *orchestrator.TimeoutError
			if errors.As(err, &timeout) {
				cmd.Printf("⏳ No response yet for %s (waited %s)\n", timeout.RequestID, timeout.Waited)
				cmd.Printf("Response will appear at: %s\n", timeout.ResponsePath)
				return
			}
			cmd.Printf("Error: %v\n", err)
			return
		}

		if resp == nil {
			cmd.Printf("✓ Request %s sent\n", id)
			return
		}
		out, _ := json.MarshalIndent(resp.Payload, "", "  ")
		cmd.Printf("✓ Response for %s:\n%s\n", id, string(out))
	},
}

var orchRespondCmd = &cobra.Command{
	Use:   "respond [request_id]",
	Short: "Answer a pending request (orchestrator side)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		payloadJSON, _ := cmd.Flags().GetString("payload")

		var payload map[string]any
		if payloadJSON != "" {
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
				cmd.Printf("Error: invalid --payload JSON: %v\n", err)
				return
			}
		}

		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		if err := ch.Respond(args[0], payload); err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Response written for %s\n", args[0])
	},
}

var orchPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List unanswered requests in the inbox",
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		requests, err := ch.PendingRequests()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if len(requests) == 0 {
			cmd.Println("Inbox is empty.")
			return
		}

		for _, req := range requests {
			cmd.Printf("%s  %s%s%s  by=%s  %s(%s ago)%s\n",
				req.ID, colorBold, req.Action, colorReset, req.CreatedBy,
				colorDim, relativeTime(req.CreatedAt), colorReset)
		}
	},
}

var orchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe orchestrator liveness",
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, err := channel()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		st := ch.Status()

		lease := colorRed + "free" + colorReset
		if st.LockHeld {
			lease = colorGreen + "held" + colorReset
		}
		cmd.Printf("%sLease:%s      %s\n", colorDim, colorReset, lease)

		if st.PID != 0 {
			alive := colorRed + "dead" + colorReset
			if st.PIDAlive {
				alive = colorGreen + "alive" + colorReset
			}
			cmd.Printf("%sPID:%s        %d (%s)\n", colorDim, colorReset, st.PID, alive)
		} else {
			cmd.Printf("%sPID:%s        -\n", colorDim, colorReset)
		}

		if st.HeartbeatAt.IsZero() {
			cmd.Printf("%sHeartbeat:%s  never\n", colorDim, colorReset)
		} else {
			cmd.Printf("%sHeartbeat:%s  %s ago\n", colorDim, colorReset, st.HeartbeatAge.Round(time.Second))
		}
	},
}

func init() {
	orchSendCmd.Flags().StringP("payload", "p", "", "Request payload as a JSON object")
	orchSendCmd.Flags().DurationP("wait", "w", 0, "How long to poll for the response (0 = fire and forget)")
	orchRespondCmd.Flags().StringP("payload", "p", "", "Response payload as a JSON object")

	orchCmd.AddCommand(orchSendCmd)
	orchCmd.AddCommand(orchRespondCmd)
	orchCmd.AddCommand(orchPendingCmd)
	orchCmd.AddCommand(orchStatusCmd)
	rootCmd.AddCommand(orchCmd)
}
