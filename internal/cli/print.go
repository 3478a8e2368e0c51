package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"driving-school-admin/internal/model"
)

const timeLayout = "2006.01.02. 15:04"

func printSession(w io.Writer, s *model.Session) {
	mode := "normal"
	if s.Sandbox {
		mode = "sandbox"
	}
	fmt.Fprintf(w, "Session %s (%s, %s)\n", s.ID, mode, s.RunAt.Local().Format(timeLayout))
	if s.Source != "" {
		fmt.Fprintf(w, "Source:  %s\n", s.Source)
	}
	if s.ClosedAt != nil {
		fmt.Fprintf(w, "Closed:  %s\n", s.ClosedAt.Local().Format(timeLayout))
	}
	fmt.Fprintf(w, "Counts:  %s\n", s.Counts())

	printOutcomes(w, "Created", s.Created)
	printOutcomes(w, "Updated", s.Updated)
	printOutcomes(w, "Skipped", s.Skipped)
	printOutcomes(w, "Errors", s.Errors)

	if len(s.CaseFiled) > 0 {
		fmt.Fprintf(w, "\nCase filed: %v\n", s.CaseFiled)
	}

	if len(s.Conflicts) > 0 {
		fmt.Fprintf(w, "\nConflicts (%d)\n", len(s.Conflicts))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSHEET\tROW\tSTUDENT\tROW BIRTH DATE\tSTORED\tREASON")
		for _, c := range s.Conflicts {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				c.ID, c.Row.Sheet, c.Row.Number, c.Row.Identifier, c.RowBirthDate, c.StoredBirthDate, c.Reason)
		}
		tw.Flush()
	}
}

func printOutcomes(w io.Writer, title string, outcomes []model.Outcome) {
	if len(outcomes) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d)\n", title, len(outcomes))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SHEET\tROW\tSTUDENT\tSUBJECT\tDATE\tRESULT\tNOTE")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			o.Sheet, o.Row, o.StudentID, o.Subject, o.Date, o.Result, outcomeNote(o))
	}
	tw.Flush()
}

func outcomeNote(o model.Outcome) string {
	note := o.Reason
	if o.Existing != "" {
		if note != "" {
			note += "; "
		}
		note += "was " + o.Existing
	}
	if o.Forced {
		if note != "" {
			note += "; "
		}
		note += "forced"
	}
	return note
}

func printHistory(w io.Writer, sessions []model.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No import sessions yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRUN AT\tMODE\tSOURCE\tCREATED\tUPDATED\tSKIPPED\tERRORS\tCONFLICTS\tCLOSED")
	for _, s := range sessions {
		mode := "normal"
		if s.Sandbox {
			mode = "sandbox"
		}
		closed := ""
		if s.ClosedAt != nil {
			closed = s.ClosedAt.Local().Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.ID, s.RunAt.Local().Format(timeLayout), mode, s.Source,
			s.Counts.Created, s.Counts.Updated, s.Counts.Skipped, s.Counts.Errors, s.Counts.Conflicts, closed)
	}
	tw.Flush()
}

func since(t time.Time) string {
	return time.Since(t).Round(time.Millisecond).String()
}
