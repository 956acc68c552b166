package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	clierrors "github.com/mikedelcastillo/pip-pip/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		clierrors.PrintError(os.Stderr, clierrors.FromError(err, "P040"))
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "pipwire",
		Short: "Relay server and tools for the pip-pip wire protocol",
		Long: `pipwire serves and inspects the pip-pip packet protocol.

Packets are a one byte code followed by fixed order fields. Units are
batched into group frames separated by newlines. The relay server assigns
connection ids, keeps clients alive with pings and forwards every frame a
client sends to all other clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				clierrors.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to pipwire.toml (default: ./pipwire.toml if present)")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		serveCmd(opts),
		schemaCmd(opts),
		encodeCmd(),
		decodeCmd(),
		versionCmd(),
	)
	return rootCmd
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
