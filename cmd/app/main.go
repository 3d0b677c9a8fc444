package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/sidestamp/internal"
	pkgconfig "github.com/starford/sidestamp/pkg/config"
)

// loadConfig reads the optional config file and applies command-line
// overrides on top of it.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.Args().Len() > 0 {
		cfg.Library.Root = cmd.Args().First()
	}
	if cmd.IsSet("dry-run") {
		cfg.Library.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("timezone") {
		cfg.Library.Timezone = cmd.String("timezone")
	}
	if cmd.IsSet("port") {
		cfg.App.HTTP.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("watch") {
		cfg.Watch.Enabled = cmd.Bool("watch")
	}
	if cmd.IsSet("debounce") {
		cfg.Watch.Debounce = cmd.Duration("debounce")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

func runCmd(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	_, err = internal.RunOnce(ctx, internal.WithConfig(cfg))
	return err
}

func inspectCmd(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("inspect takes exactly one image path")
	}
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return internal.Inspect(cmd.Args().First(), internal.WithConfig(cfg))
}

func watchCmd(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Watch(ctx, internal.WithConfig(cfg))
}

func serveCmd(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Serve(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcpCmd(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg))
}

func dryRunFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "Match and parse sidecars without modifying images",
	}
}

func timezoneFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "timezone",
		Aliases: []string{"tz"},
		Usage:   "IANA zone used to render sidecar timestamps (default: local zone)",
	}
}

func debounceFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "debounce",
		Usage: "Quiet period before a changed sidecar is processed",
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "sidestamp",
		Usage: "Write the capture time recorded in photo sidecar files into the EXIF metadata of the matching images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Reconcile every sidecar under a directory once",
				ArgsUsage: "[dir]",
				Flags:     []cli.Flag{dryRunFlag(), timezoneFlag()},
				Action:    runCmd,
			},
			{
				Name:      "inspect",
				Usage:     "Print the EXIF date-time tags of an image",
				ArgsUsage: "<image>",
				Action:    inspectCmd,
			},
			{
				Name:      "watch",
				Usage:     "Reconcile a directory, then keep processing new or changed sidecars",
				ArgsUsage: "[dir]",
				Flags:     []cli.Flag{dryRunFlag(), timezoneFlag(), debounceFlag()},
				Action:    watchCmd,
			},
			{
				Name:      "serve",
				Usage:     "Serve the HTTP API and SSE event stream",
				ArgsUsage: "[dir]",
				Flags: []cli.Flag{
					timezoneFlag(),
					debounceFlag(),
					&cli.IntFlag{
						Name:  "port",
						Usage: "HTTP port",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Also watch the library for new sidecars",
					},
				},
				Action: serveCmd,
			},
			{
				Name:      "mcp",
				Usage:     "Serve the MCP tools over stdio",
				ArgsUsage: "[dir]",
				Flags:     []cli.Flag{timezoneFlag()},
				Action:    mcpCmd,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
