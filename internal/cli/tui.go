package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternchat/sdk-go/internal/config"
	"github.com/lanternchat/sdk-go/internal/tui"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var tuiRoom string

var tuiCmd = &cobra.Command{
	Use:     "tui",
	Aliases: []string{"chat"},
	Short:   "Open the interactive chat client",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.cfg
		var room models.Snowflake
		if tuiRoom != "" {
			id, err := models.ParseSnowflake(tuiRoom)
			if err != nil {
				return fmt.Errorf("--room: %w", err)
			}
			room = id
		}

		d, err := newDriver(cfg, app.logger, nil)
		if err != nil {
			return err
		}
		if err := requireAuth(d); err != nil {
			return err
		}
		conn, err := newGateway(d, cfg, app.logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = conn.Close(ctx)
		}()

		return tui.Run(tui.Options{
			Driver:       d,
			Conn:         conn,
			Logger:       app.logger,
			Room:         room,
			ReconnectMin: config.Duration(cfg.Gateway.ReconnectMin, time.Second),
			ReconnectMax: config.Duration(cfg.Gateway.ReconnectMax, time.Minute),
			Version:      version,
		})
	},
}

func init() {
	tuiCmd.Flags().StringVar(&tuiRoom, "room", "", "Room to open first")
}
