package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/linuxmatters/avfeed/internal/cli"
	"github.com/linuxmatters/avfeed/internal/config"
	"github.com/linuxmatters/avfeed/internal/logging"
)

// version is set via ldflags at build time
// Local dev builds: "dev"
// Release builds: git tag (e.g. "v0.1.0")
var version = "dev"

// CLI is the command line model.
type CLI struct {
	Config    string `help:"YAML configuration file." type:"existingfile" placeholder:"FILE"`
	LogLevel  string `help:"Log level: debug, info, warn or error. Overrides the config." placeholder:"LEVEL"`
	LogFormat string `help:"Log format: auto, text or json. Overrides the config." placeholder:"FORMAT"`

	Probe   ProbeCmd   `cmd:"" help:"List the streams of a media file."`
	Play    PlayCmd    `cmd:"" help:"Decode a media file through the playback pipeline."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// App carries the resolved configuration and logger into commands.
type App struct {
	Config config.Config
	Logger *slog.Logger
}

// VersionCmd prints the build version.
type VersionCmd struct{}

// Run implements the version command.
func (VersionCmd) Run(*App) error {
	v := version
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	cli.PrintVersion(v)
	return nil
}

func main() {
	var args CLI
	ctx := kong.Parse(&args,
		kong.Name("avfeed"),
		kong.Description("Decode audio and video into timestamped frames for real-time playback."),
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	cfg := config.Defaults()
	if args.Config != "" {
		loaded, err := config.Load(args.Config)
		if err != nil {
			cli.PrintError(err.Error())
			os.Exit(1)
		}
		cfg = loaded
	}
	if args.LogLevel != "" {
		cfg.Log.Level = args.LogLevel
	}
	if args.LogFormat != "" {
		cfg.Log.Format = args.LogFormat
	}

	logger, handler, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
	slog.SetDefault(logger)

	err = ctx.Run(&App{Config: cfg, Logger: logger})
	handler.Close()
	if dropped := handler.Dropped(); dropped > 0 {
		cli.PrintWarning(fmt.Sprintf("%d log records dropped", dropped))
	}
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}
