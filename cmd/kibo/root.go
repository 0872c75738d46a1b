package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kibo-snap/kibo/internal/cliconfig"
	"github.com/kibo-snap/kibo/internal/cliutil"
	"github.com/kibo-snap/kibo/internal/kiboversion"
	"github.com/kibo-snap/kibo/internal/logging"
	"github.com/kibo-snap/kibo/internal/snapshot"
)

var rootConfiguration struct {
	verbose      bool
	quiet        bool
	yes          bool
	progress     bool
	noProgress   bool
	workspaceDir string
}

var rootCommand = &cobra.Command{
	Use:     "kibo",
	Short:   "kibo takes content-addressed snapshots of a workspace and restores them",
	Version: kiboversion.Version,
	Long: `kibo snapshots the directories and file patterns configured in .kibo_config
into a content-addressed blob store, so repeated snapshots only pay for the
bytes that actually changed.`,
	Run: cliutil.Mainify(rootMain),
}

func rootMain(command *cobra.Command, arguments []string) error {
	command.Help()
	return nil
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.BoolVarP(&rootConfiguration.verbose, "verbose", "v", false, "enable debug-level logging")
	flags.BoolVarP(&rootConfiguration.quiet, "quiet", "q", false, "only log errors")
	flags.BoolVarP(&rootConfiguration.yes, "yes", "y", false, "assume yes to any confirmation prompt")
	flags.BoolVar(&rootConfiguration.progress, "progress", false, "force progress output on")
	flags.BoolVar(&rootConfiguration.noProgress, "no-progress", false, "force progress output off")
	flags.StringVarP(&rootConfiguration.workspaceDir, "root", "C", "", "workspace root (default: current directory)")

	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""

	rootCommand.AddCommand(
		saveCommand,
		loadCommand,
		listCommand,
		rmCommand,
		pruneCommand,
		historyCommand,
	)
}

// Execute runs the root command. It is called once by main.main.
func Execute() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}

// workspaceContext bundles everything a subcommand needs after loading
// .kibo_config: the resolved root directory, the decoded configuration, a
// leveled logger, and a ready-to-use snapshot engine.
type workspaceContext struct {
	Root   string
	Config *cliconfig.Config
	Logger *logging.Logger
	Engine *snapshot.Engine
}

func loadWorkspace() (*workspaceContext, error) {
	root := rootConfiguration.workspaceDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining working directory: %w", err)
		}
		root = wd
	}

	config, err := cliconfig.Load(root)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(resolveLogLevel(), os.Stderr)

	warn := func(msg string) { logger.Warn(fmt.Errorf("%s", msg)) }
	compressionLevel := config.EffectiveCompressionLevel(warn)

	engine := snapshot.NewEngine(root, compressionLevel, kiboversion.Version, logger)

	return &workspaceContext{Root: root, Config: config, Logger: logger, Engine: engine}, nil
}

func resolveLogLevel() logging.Level {
	switch {
	case rootConfiguration.quiet:
		return logging.LevelError
	case rootConfiguration.verbose:
		return logging.LevelDebug
	default:
		return logging.LevelInfo
	}
}

func shouldShowProgress(configValue *bool) bool {
	mode := cliconfig.ResolveProgress(rootConfiguration.progress, rootConfiguration.noProgress, configValue)
	return cliconfig.ShouldShowProgress(mode, os.Stderr)
}

// confirm prompts the user for a yes/no answer on stdin, honoring --yes to
// skip the prompt entirely.
func confirm(prompt string) bool {
	if rootConfiguration.yes {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
