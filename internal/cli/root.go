// Package cli implements the reconcile operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"driving-school-admin/internal/app"
	"driving-school-admin/internal/config"
	"driving-school-admin/internal/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Import exam-authority workbooks into student records",
	Long: "Runs exam-authority exports against the student store, lists recent import " +
		"sessions and resolves birth-date conflicts.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CONFIG_PATH or config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
}

func loadApp(ctx context.Context) (*app.App, error) {
	if configPath != "" {
		os.Setenv("CONFIG_PATH", configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Logging.Level, "console")

	// The CLI exposes no metrics endpoint.
	return app.New(ctx, cfg, nil)
}

// output writes v as JSON, or calls text when the text format is selected.
func output(w io.Writer, v interface{}, text func(io.Writer)) error {
	switch formatFlag {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown format %q", formatFlag)
	}
}
