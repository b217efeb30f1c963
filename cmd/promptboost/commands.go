package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	jsonOutput  bool
	recentLimit int

	enhanceCmd = &cobra.Command{
		Use:   "enhance [text]",
		Short: "Enhance text once and print the result (reads stdin when no text is given)",
		RunE:  runEnhance,
	}

	feedbackCmd = &cobra.Command{
		Use:   "feedback <session-id> <accepted|rejected>",
		Short: "Record a verdict for a previous attempt",
		Args:  cobra.ExactArgs(2),
		RunE:  runFeedback,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show verdict counts across the ledger",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	recentCmd = &cobra.Command{
		Use:   "recent",
		Short: "List the newest attempts",
		Args:  cobra.NoArgs,
		RunE:  runRecent,
	}

	rejectRecentCmd = &cobra.Command{
		Use:   "reject-recent <count>",
		Short: "Mark the newest attempts without explicit feedback as rejected",
		Args:  cobra.ExactArgs(1),
		RunE:  runRejectRecent,
	}
)

func init() {
	enhanceCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full response as JSON")
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 20, "number of attempts to list")
}

func runEnhance(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyText
	}

	resp, err := newClient().Enhance(cmd.Context(), domain.EnhanceRequest{
		Text:             text,
		SessionID:        uuid.NewString(),
		TrueOriginalText: text,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(out, resp.Text)
	if resp.Degraded {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: enhancement failed on the server")
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "session:", resp.SessionID)
	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	action, err := domain.ParseUserAction(args[1])
	if err != nil {
		return err
	}
	resp, err := newClient().Feedback(cmd.Context(), args[0], action)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Status, resp.Message)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	stats, err := newClient().Stats(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "total\t%d\n", stats.Total)
	fmt.Fprintf(w, "accepted\t%d\n", stats.Accepted)
	fmt.Fprintf(w, "rejected\t%d\n", stats.Rejected)
	fmt.Fprintf(w, "implicit\t%d\n", stats.Implicit)
	return w.Flush()
}

func runRecent(cmd *cobra.Command, _ []string) error {
	attempts, err := newClient().Recent(cmd.Context(), recentLimit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSESSION\tSTRATEGY\tACTION\tSCORE")
	for _, a := range attempts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Local().Format(time.DateTime), a.SessionID, a.Strategy, formatAction(a), formatScore(a.QualityScore))
	}
	return w.Flush()
}

func runRejectRecent(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fmt.Errorf("count must be a positive integer, got %q", args[0])
	}
	updated, err := newClient().RejectRecent(cmd.Context(), n)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "marked %d attempt(s) rejected\n", updated)
	return nil
}

func formatAction(a domain.Attempt) string {
	if a.UserAction == domain.ActionNone {
		return "-"
	}
	if !a.HasFeedback() {
		return string(a.UserAction) + " (implicit)"
	}
	return string(a.UserAction)
}

func formatScore(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

