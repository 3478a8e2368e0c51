package cli

import (
	"fmt"
	"io"

	"driving-school-admin/internal/model"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(
		&cobra.Command{
			Use:   "history",
			Short: "List the retained import sessions, newest first",
			Args:  cobra.NoArgs,
			RunE:  runHistory,
		},
		&cobra.Command{
			Use:   "show <session-id>",
			Short: "Show one import session with its outcomes and open conflicts",
			Args:  cobra.ExactArgs(1),
			RunE:  runShow,
		},
		&cobra.Command{
			Use:   "apply <session-id> <conflict-id>",
			Short: "Force-apply a conflict row without checking the birth date",
			Args:  cobra.ExactArgs(2),
			RunE:  runApply,
		},
		&cobra.Command{
			Use:   "discard <session-id>",
			Short: "Close a session and drop its pending conflicts",
			Args:  cobra.ExactArgs(1),
			RunE:  runDiscard,
		},
	)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.Importer.History(cmd.Context())
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	summaries := make([]model.SessionSummary, 0, len(sessions))
	for i := range sessions {
		summaries = append(summaries, sessions[i].Summary())
	}
	return output(cmd.OutOrStdout(), summaries, func(w io.Writer) {
		printHistory(w, summaries)
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.Importer.Session(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("show %s: %w", args[0], err)
	}
	return output(cmd.OutOrStdout(), model.SessionResponse{Counts: session.Counts(), Session: session}, func(w io.Writer) {
		printSession(w, session)
	})
}

func runApply(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	session, outcome, err := a.Importer.ForceApply(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("apply %s: %w", args[1], err)
	}

	resp := model.ForceApplyResponse{
		Outcome: outcome,
		Session: model.SessionResponse{Counts: session.Counts(), Session: session},
	}
	return output(cmd.OutOrStdout(), resp, func(w io.Writer) {
		if outcome == nil {
			fmt.Fprintln(w, "Applied; the row had nothing left to change.")
		} else {
			fmt.Fprintf(w, "Applied: %s %s %s (%s)\n", outcome.Status, outcome.StudentID, outcome.Subject, outcomeNote(*outcome))
		}
		fmt.Fprintf(w, "Session %s: %s\n", session.ID, session.Counts())
	})
}

func runDiscard(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.Importer.Discard(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("discard %s: %w", args[0], err)
	}
	return output(cmd.OutOrStdout(), session.Summary(), func(w io.Writer) {
		fmt.Fprintf(w, "Session %s closed.\n", session.ID)
	})
}
