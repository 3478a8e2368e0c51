package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"driving-school-admin/internal/model"
	"driving-school-admin/internal/reconcile"

	"github.com/spf13/cobra"
)

var sandboxFlag bool

func init() {
	cmd := &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Import an exam-authority workbook",
		Long: "Applies bookings, results, cancellations and case filings from the workbook. " +
			"With --sandbox the run reports what would change without writing student records.",
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
	cmd.Flags().BoolVar(&sandboxFlag, "sandbox", false, "Do not write student records")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer file.Close()

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	started := time.Now()
	session, err := a.Importer.Run(cmd.Context(), reconcile.Request{
		Workbook: file,
		Source:   filepath.Base(args[0]),
		Sandbox:  sandboxFlag,
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	return output(cmd.OutOrStdout(), model.SessionResponse{Counts: session.Counts(), Session: session}, func(w io.Writer) {
		printSession(w, session)
		fmt.Fprintf(w, "\nFinished in %s\n", since(started))
	})
}
