package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"deskos/config"
	"deskos/desktop"
	"deskos/mcp"
	"deskos/plugins/notepad"
	"deskos/ui"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

const (
	shutdownTimeout = 10 * time.Second
	syncTimeout     = 2 * time.Second
)

var (
	dataDir string
	debug   bool
	width   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deskos",
		Short: "Plugin desktop runtime with an MCP tool bridge",
		Long: `deskos hosts desktop plugins, keeps their windows and component state,
and exposes every component action as an MCP tool. Without a subcommand it
serves MCP over stdin/stdout.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config and "+config.EnvDataDir+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging to the data directory")
	rootCmd.PersistentFlags().IntVar(&width, "width", 0, "output width in columns (default 80)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdin/stdout",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show plugins, components and open windows",
		RunE:  runStatus,
	})

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed to MCP clients",
		RunE:  runTools,
	}
	toolsCmd.Flags().String("format", "", "output format: mcp, openai, openrouter, anthropic or ollama")
	toolsCmd.Flags().String("query", "", "fuzzy filter on tool name and description")
	rootCmd.AddCommand(toolsCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "call <tool> [arguments-json]",
		Short: "Call one tool and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runCall,
	})

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List the events known to the event bus",
		RunE:  runEvents,
	}
	eventsCmd.Flags().String("query", "", "fuzzy filter on event name")
	rootCmd.AddCommand(eventsCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("deskos %s (%s)\n", Version, License)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session is a started desktop plus the cleanup that goes with it.
type session struct {
	desktop  *desktop.Desktop
	closeLog func() error
}

func openDesktop(ctx context.Context) (*session, error) {
	if dataDir != "" {
		os.Setenv(config.EnvDataDir, dataDir)
	}
	if debug {
		os.Setenv(config.EnvDebug, "1")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := config.NewLogger(cfg, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	d, err := desktop.New(cfg, logger, desktop.WithVersion(Version))
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to create desktop: %w", err)
	}
	if err := d.RegisterPlugin(notepad.New(d.Components(), d.Bus())); err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to register notepad: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to start desktop: %w", err)
	}
	return &session{desktop: d, closeLog: closeLog}, nil
}

func (s *session) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.desktop.Shutdown(ctx)
	return errors.Join(err, s.closeLog())
}

// waitForTools gives the worker time to register tools for every
// component announced at startup.
func (s *session) waitForTools() {
	deadline := time.Now().Add(syncTimeout)
	for time.Now().Before(deadline) {
		synced := true
		for _, c := range s.desktop.Components().GetComponents() {
			if !s.desktop.MCP().IsComponentRegistered(c.ID) {
				synced = false
				break
			}
		}
		if synced {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openDesktop(ctx)
	if err != nil {
		return err
	}

	// A blocked stdin read does not observe ctx, so a signal shuts down
	// without waiting for ServeStdio.
	done := make(chan error, 1)
	go func() { done <- s.desktop.MCP().ServeStdio(ctx, os.Stdin, os.Stdout) }()

	var serveErr error
	select {
	case serveErr = <-done:
	case <-ctx.Done():
	}
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}
	return errors.Join(serveErr, s.close())
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openDesktop(cmd.Context())
	if err != nil {
		return err
	}
	s.waitForTools()
	fmt.Print(ui.RenderStatus(s.desktop.Status(), width))
	return s.close()
}

func runTools(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	query, _ := cmd.Flags().GetString("query")
	if !mcp.ValidFormat(format) {
		return fmt.Errorf("unsupported format %q", format)
	}

	s, err := openDesktop(cmd.Context())
	if err != nil {
		return err
	}
	s.waitForTools()
	tools := s.desktop.MCP().Search(query)

	if format == "" || format == mcp.FormatMCP {
		fmt.Print(ui.RenderTools(tools, width))
		return s.close()
	}

	converted, err := mcp.ConvertTools(format, tools)
	if err != nil {
		return errors.Join(err, s.close())
	}
	data, err := json.MarshalIndent(converted, "", "  ")
	if err != nil {
		return errors.Join(err, s.close())
	}
	fmt.Println(string(data))
	return s.close()
}

func runCall(cmd *cobra.Command, args []string) error {
	arguments := map[string]any{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	s, err := openDesktop(cmd.Context())
	if err != nil {
		return err
	}
	s.waitForTools()

	result, err := s.desktop.MCP().ExecuteTool(cmd.Context(), args[0], arguments)
	if err != nil {
		return errors.Join(err, s.close())
	}
	for _, content := range result.Content {
		if text, ok := content.(mcptypes.TextContent); ok {
			fmt.Println(text.Text)
		}
	}
	if result.IsError {
		return errors.Join(fmt.Errorf("tool %s failed", args[0]), s.close())
	}
	return s.close()
}

func runEvents(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	s, err := openDesktop(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(ui.RenderList(s.desktop.Bus().SearchEvents(query), "No matching events."))
	return s.close()
}
