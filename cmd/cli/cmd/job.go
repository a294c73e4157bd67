package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"coordplane/internal/jobqueue"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage the durable job queue",
}

var jobAddCmd = &cobra.Command{
	Use:   "add [channel] [video]",
	Short: "Enqueue a new job",
	Long: `Enqueue a new pending job for the worker pool.

Example:
  coordctl job add my-channel intro-episode --max-retries 2`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		maxRetries, _ := cmd.Flags().GetInt("max-retries")

		queue, _, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		job, err := queue.Add(args[0], args[1], maxRetries)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Job enqueued!\nID: %s\nChannel: %s\nVideo: %s\n", job.ID, job.Channel, job.Video)
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, optionally filtered by status",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")

		queue, _, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		jobs, err := queue.List(jobqueue.Status(status))
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if len(jobs) == 0 {
			cmd.Println("No jobs.")
			return
		}

		for _, job := range jobs {
			cmd.Printf("%s  %s  %s/%s  attempts=%d/%d  %s(%s ago)%s\n",
				job.ID, colorizeStatus(job.Status), job.Channel, job.Video,
				job.Attempts, job.MaxRetries,
				colorDim, relativeTime(job.UpdatedAt), colorReset)
		}
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show [job_id]",
	Short: "Show one job's details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue, cfg, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		job, err := queue.Get(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		icon := statusIcon(job.Status)
		cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
		cmd.Printf("%sChannel:%s     %s\n", colorDim, colorReset, job.Channel)
		cmd.Printf("%sVideo:%s       %s\n", colorDim, colorReset, job.Video)
		cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(job.Status))
		cmd.Printf("%sAttempts:%s    %d/%d\n", colorDim, colorReset, job.Attempts, job.MaxRetries)
		if job.Result != "" {
			cmd.Printf("%sResult:%s      %s\n", colorDim, colorReset, job.Result)
		}
		cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&job.CreatedAt))
		cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.StartedAt))
		cmd.Printf("%sLog:%s         %s\n", colorDim, colorReset, cfg.JobLogPath(job.ID))
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a pending job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue, _, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		job, err := queue.Cancel(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Job %s canceled\n", job.ID)
	},
}

var jobRetryCmd = &cobra.Command{
	Use:   "retry [job_id]",
	Short: "Requeue a failed or canceled job with a fresh attempt budget",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue, _, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		job, err := queue.Retry(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Job %s requeued (attempts reset)\n", job.ID)
	},
}

var jobForceCmd = &cobra.Command{
	Use:   "force [job_id] [status]",
	Short: "Force a job's status for manual recovery (pending or failed only)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		queue, _, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		job, err := queue.ForceStatus(args[0], jobqueue.Status(args[1]))
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Job %s forced to %s\n", job.ID, job.Status)
	},
}

var jobPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove terminal jobs older than the given age",
	Run: func(cmd *cobra.Command, args []string) {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		queue, _, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		removed, err := queue.Purge(olderThan)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Purged %d job(s)\n", removed)
	},
}

var jobGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim jobs stuck in running past the staleness threshold",
	Run: func(cmd *cobra.Command, args []string) {
		threshold, _ := cmd.Flags().GetDuration("threshold")

		queue, cfg, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if threshold == 0 {
			threshold = cfg.GCThreshold
		}

		reclaimed, err := queue.GC(threshold)
		if err != nil {
			var blocked *jobqueue.ErrBlocked
			if errors.As(err, &blocked) {
				cmd.Printf("Blocked: advisory lock %s held by %s covers the queue file\n", blocked.LockID, blocked.CreatedBy)
				return
			}
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Reclaimed %d stale job(s)\n", len(reclaimed))
		for _, job := range reclaimed {
			cmd.Printf("  %s %s/%s\n", job.ID, job.Channel, job.Video)
		}
	},
}

var jobRunNextCmd = &cobra.Command{
	Use:   "run-next",
	Short: "Claim and execute one pending job in the foreground",
	Run: func(cmd *cobra.Command, args []string) {
		queue, _, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		job, err := queue.RunNext(ctx)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if job == nil {
			cmd.Println("No pending jobs.")
			return
		}
		cmd.Printf("%s Job %s finished as %s\n", statusIcon(job.Status), job.ID, job.Status)
	},
}

var jobRunLoopCmd = &cobra.Command{
	Use:   "run-loop",
	Short: "Run the worker pool in the foreground",
	Long: `Run the worker pool in the foreground. Useful for one-off draining; the
coordworker daemon is the long-running deployment.

Example:
  coordctl job run-loop --limit 10 --concurrency 2`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		limit, _ := flags.GetInt("limit")
		concurrency, _ := flags.GetInt("concurrency")

		queue, cfg, err := jobQueue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if concurrency == 0 {
			concurrency = cfg.WorkerConcurrency
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := queue.RunLoop(ctx, limit, concurrency); err != nil && !errors.Is(err, context.Canceled) {
			cmd.Printf("Error: %v\n", err)
		}
	},
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status jobqueue.Status) string {
	switch status {
	case jobqueue.StatusCompleted:
		return colorGreen + "✓" + colorReset
	case jobqueue.StatusFailed:
		return colorRed + "✗" + colorReset
	case jobqueue.StatusRunning:
		return colorYellow + "⏳" + colorReset
	case jobqueue.StatusPending:
		return colorCyan + "◯" + colorReset
	case jobqueue.StatusCanceled:
		return colorDim + "⊘" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status jobqueue.Status) string {
	icon := statusIcon(status)
	switch status {
	case jobqueue.StatusCompleted:
		return icon + " " + colorGreen + string(status) + colorReset
	case jobqueue.StatusFailed:
		return icon + " " + colorRed + string(status) + colorReset
	case jobqueue.StatusRunning:
		return icon + " " + colorYellow + string(status) + colorReset
	case jobqueue.StatusPending:
		return icon + " " + colorCyan + string(status) + colorReset
	default:
		return string(status)
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(*t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func init() {
	jobAddCmd.Flags().Int("max-retries", 0, "How many failures to tolerate before the job is terminal")
	jobListCmd.Flags().StringP("status", "s", "", "Filter by status (pending, running, completed, failed, canceled)")
	jobPurgeCmd.Flags().Duration("older-than", 24*time.Hour, "Minimum age of terminal jobs to purge")
	jobGCCmd.Flags().Duration("threshold", 0, "Staleness threshold (default from COORDPLANE_GC_THRESHOLD)")
	jobRunLoopCmd.Flags().Int("limit", 0, "Exit after this many jobs (0 = run forever)")
	jobRunLoopCmd.Flags().Int("concurrency", 0, "Jobs in flight at once (default from COORDPLANE_WORKER_CONCURRENCY)")

	jobCmd.AddCommand(jobAddCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobShowCmd)
	jobCmd.AddCommand(jobCancelCmd)
	jobCmd.AddCommand(jobRetryCmd)
	jobCmd.AddCommand(jobForceCmd)
	jobCmd.AddCommand(jobPurgeCmd)
	jobCmd.AddCommand(jobGCCmd)
	jobCmd.AddCommand(jobRunNextCmd)
	jobCmd.AddCommand(jobRunLoopCmd)
	rootCmd.AddCommand(jobCmd)
}
