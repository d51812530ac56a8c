package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	syslogger "github.com/lanternchat/sdk-go/internal/system/logger"
)

var (
	logsLines  int
	logsFollow bool
	logsGrep   string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect CLI log files",
}

// logsListCmd 列出所有日志文件
var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all log files",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		dir := app.cfg.LogDir()
		files, err := syslogger.ListFiles(dir)
		if err != nil {
			return fmt.Errorf("list log files: %w", err)
		}
		if len(files) == 0 {
			fmt.Fprintf(out, "No log files found in %s\n", dir)
			return nil
		}

		var total int64
		for _, f := range files {
			total += f.Size
		}
		fmt.Fprintf(out, "Log files (%d, total %s):\n\n", len(files), humanBytes(total))
		for _, f := range files {
			fmt.Fprintf(out, "  %-32s  %10s  %s\n", f.Name, humanBytes(f.Size), f.ModTime.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(out, "\nLog directory: %s\n", dir)
		return nil
	},
}

// logsTailCmd 打印最新日志文件的末尾
var logsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the end of the newest log file",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		files, err := syslogger.ListFiles(app.cfg.LogDir())
		if err != nil {
			return fmt.Errorf("list log files: %w", err)
		}
		if len(files) == 0 {
			return errors.New("no log files yet")
		}
		latest := files[0].Path

		lines, err := syslogger.Tail(latest, logsLines, logsGrep)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		if !logsFollow {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return syslogger.Follow(ctx, latest, out)
	},
}

// logsCleanCmd 清理过期日志
var logsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove log files past the retention age",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.logs == nil {
			return errors.New("file logging is not available")
		}
		removed, err := app.logs.Cleanup()
		if err != nil {
			return fmt.Errorf("cleanup logs: %w", err)
		}
		out := cmd.OutOrStdout()
		if removed == 0 {
			fmt.Fprintln(out, "No expired log files to clean.")
		} else {
			printSuccess(out, fmt.Sprintf("Removed %d expired log files (older than %d days)", removed, syslogger.DefaultConfig().MaxAgeDays))
		}
		return nil
	},
}

// logsStatusCmd 显示日志系统状态
var logsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show log system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		dir := app.cfg.LogDir()
		files, _ := syslogger.ListFiles(dir)
		var total int64
		for _, f := range files {
			total += f.Size
		}
		def := syslogger.DefaultConfig()

		fmt.Fprintln(out, styleTitle.Render("Log System Status"))
		fmt.Fprintf(out, "  Directory:    %s\n", dir)
		fmt.Fprintf(out, "  Total files:  %d\n", len(files))
		fmt.Fprintf(out, "  Total size:   %s\n", humanBytes(total))
		if len(files) > 0 {
			fmt.Fprintf(out, "  Latest file:  %s\n", files[0].Name)
			fmt.Fprintf(out, "  Latest time:  %s\n", files[0].ModTime.Local().Format("2006-01-02 15:04:05"))
		}
		if app.logs != nil {
			fmt.Fprintf(out, "  Writing to:   %s\n", app.logs.CurrentFile())
		}
		fmt.Fprintf(out, "  Max age:      %d days\n", def.MaxAgeDays)
		fmt.Fprintf(out, "  Max size:     %d MB per file\n", def.MaxSizeMB)
		fmt.Fprintf(out, "  Log level:    %s\n", app.cfg.Log.Level)
		return nil
	},
}

func init() {
	logsTailCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "Number of lines")
	logsTailCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep printing new lines")
	logsTailCmd.Flags().StringVar(&logsGrep, "grep", "", "Only lines containing this text (case-insensitive)")

	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsTailCmd)
	logsCmd.AddCommand(logsCleanCmd)
	logsCmd.AddCommand(logsStatusCmd)
}
