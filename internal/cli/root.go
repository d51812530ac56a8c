package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lanternchat/sdk-go/internal/config"
	syslogger "github.com/lanternchat/sdk-go/internal/system/logger"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// SetBuildInfo sets version info injected at build time.
func SetBuildInfo(v, date, commit string) {
	version = v
	buildDate = date
	gitCommit = commit
}

// app 是命令之间共享的运行时状态，由 PersistentPreRunE 填充
var app struct {
	cfg    *config.Config
	logger *slog.Logger
	logs   *syslogger.Manager
}

var (
	flagURI      string
	flagEncoding string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "lantern",
	Short: "Lantern chat client",
	Long: `lantern talks to a Lantern chat server from the terminal.

Send and read messages over the REST API, watch the realtime gateway,
upload files and chat in a full-screen TUI.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app.logs != nil {
			_ = app.logs.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "lantern %s\n", version)
		fmt.Fprintf(out, "  build:  %s\n", buildDate)
		fmt.Fprintf(out, "  commit: %s\n", gitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagURI, "uri", "", "Server URI (overrides config and LANTERN_URI)")
	rootCmd.PersistentFlags().StringVar(&flagEncoding, "encoding", "", "Wire encoding: json or cbor")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging, also written to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(logsCmd)
}

// Execute runs the root cobra command.
func Execute() error {
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		// config set 需要能修复一个无效的配置文件
		if cmd.Parent() != configCmd {
			return err
		}
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if flagURI != "" {
		cfg.Server.URI = flagURI
	}
	if flagEncoding != "" {
		cfg.Server.Encoding = flagEncoding
	}
	app.cfg = cfg

	level, err := syslogger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if flagVerbose {
		level = slog.LevelDebug
	}

	lc := syslogger.DefaultConfig()
	lc.Dir = cfg.LogDir()
	lc.Level = level
	// TUI 独占终端，stderr 日志会把界面打乱
	lc.Stderr = flagVerbose && cmd != tuiCmd
	mgr, err := syslogger.New(lc)
	if err != nil {
		app.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		app.logger.Warn("file logging disabled", "err", err)
	} else {
		app.logs = mgr
		app.logger = mgr.Logger()
	}
	slog.SetDefault(app.logger)
	app.logger.Debug("command start", "cmd", cmd.CommandPath(), "version", version)
	return nil
}
