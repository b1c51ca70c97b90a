// Command queryforge runs the tree-query HTTP service, or executes a
// single query against a file (or a glob of files) for local debugging,
// in the style of the teacher's demo/cmd cobra CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oxhq/queryforge/internal/config"
	"github.com/oxhq/queryforge/internal/grammar"
	"github.com/oxhq/queryforge/internal/httpserver"
	"github.com/oxhq/queryforge/internal/scanner"
	"github.com/oxhq/queryforge/internal/service"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func main() {
	root := &cobra.Command{
		Use:   "queryforge",
		Short: "Tree-query pattern matching service",
		Long:  "Parses source code into a syntax tree and evaluates a tree-query language against it.",
	}

	root.AddCommand(serveCmd(), queryCmd(), languagesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			app, err := service.Bootstrap(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer app.Close()

			log := slog.New(slog.NewTextHandler(os.Stderr, nil))
			fmt.Printf("%s listening on %s\n", green("queryforge"), bold(cfg.HTTPAddr))
			return httpserver.New(app.Coordinator, cfg.HTTPAddr, log).Start()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides QUERYFORGE_HTTP_ADDR")
	return cmd
}

func languagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		Run: func(cmd *cobra.Command, args []string) {
			for _, lang := range grammar.All() {
				fmt.Printf("%s %s\n", cyan("-"), lang)
			}
		},
	}
}

func queryCmd() *cobra.Command {
	var lang, glob string
	cmd := &cobra.Command{
		Use:   "query <query-source> [path]",
		Short: "Run a tree-query against a file, or every file matched by --glob",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			app, err := service.Bootstrap(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer app.Close()

			querySource := args[0]
			ctx := context.Background()

			if glob != "" {
				root := "."
				if len(args) == 2 {
					root = args[1]
				}
				files, err := scanner.Scan(root, glob)
				if err != nil {
					return err
				}
				for _, f := range files {
					if err := runFileQuery(ctx, app, f.Path, string(f.Language), querySource); err != nil {
						fmt.Printf("%s %s: %v\n", red("error:"), f.Path, err)
					}
				}
				return nil
			}

			if len(args) != 2 {
				return fmt.Errorf("a file path is required when --glob is not set")
			}
			if lang == "" {
				resolved, ok := grammar.ForFile(args[1])
				if !ok {
					return fmt.Errorf("cannot infer language from %q, pass --lang", args[1])
				}
				lang = string(resolved)
			}
			return runFileQuery(ctx, app, args[1], lang, querySource)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "language identifier, inferred from extension if omitted")
	cmd.Flags().StringVar(&glob, "glob", "", "run the query against every file matching this glob under path")
	return cmd
}

func runFileQuery(ctx context.Context, app *service.App, path, lang, querySource string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	resp, svcErr := app.Coordinator.ProcessAdvancedRequest(ctx, service.AdvancedParseRequest{
		ParseRequest: service.ParseRequest{
			Language: lang,
			Code:     string(code),
			Query:    querySource,
		},
		EnableAdvancedFeatures: true,
		IncludeMetadata:        true,
	})
	if svcErr != nil {
		return svcErr
	}

	fmt.Printf("%s %s (%s)\n", bold(path), yellow(fmt.Sprintf("%d match(es)", len(resp.Matches))), lang)
	for _, m := range resp.Matches {
		fmt.Printf("  %s @%s %d:%d-%d:%d %q\n", cyan(m.CaptureName), m.Type, m.Start.Row, m.Start.Column, m.End.Row, m.End.Column, truncate(m.Text, 80))
	}
	if !resp.Success {
		fmt.Printf("  %s %s\n", red("errors:"), strings.Join(resp.Errors, "; "))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
