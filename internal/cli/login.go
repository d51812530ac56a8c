package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/lanternchat/sdk-go/internal/config"
	"github.com/lanternchat/sdk-go/pkg/api/commands"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	loginEmail string
	loginToken string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	Long: `Sign in with email and password, or store an existing bearer or bot
token with --token. The token is written to the config file.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored token",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Store this token instead of signing in")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg := app.cfg
	out := cmd.OutOrStdout()

	var auth *models.Authorization
	if loginToken != "" {
		a, err := models.ParseAuthHeader(loginToken)
		if err != nil {
			return err
		}
		auth = a
	} else {
		form := commands.UserLoginBody{Email: loginEmail}
		if form.Email == "" {
			form.Email = cfg.Auth.Email
		}
		if err := promptLogin(&form); err != nil {
			return err
		}

		anon := *cfg
		anon.Auth.Token = ""
		d, err := newDriver(&anon, app.logger, nil)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		start := time.Now()
		session, err := driver.Execute(ctx, d, commands.UserLogin{Form: form})
		recordREST(cfg, "UserLogin", restScope{}, start, err)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		a, err := models.ParseToken(session.Auth)
		if err != nil {
			return fmt.Errorf("login: server returned %w", err)
		}
		auth = a
		cfg.Auth.Email = form.Email
		if !session.Expires.IsZero() {
			printNote(out, "Session expires "+session.Expires.Local().Format(time.RFC1123), "")
		}
	}

	cfg.Auth.Token = auth.Header()
	d, err := newDriver(cfg, app.logger, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	self, err := driver.Execute(ctx, d, commands.GetSelf{})
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}

	if err := updateConfig(func(c *config.Config) error {
		c.Auth.Token = cfg.Auth.Token
		if cfg.Auth.Email != "" {
			c.Auth.Email = cfg.Auth.Email
		}
		return nil
	}); err != nil {
		return err
	}
	printSuccess(out, fmt.Sprintf("Signed in as %s#%04d (%s)", self.Username, self.Discriminator, auth.Kind()))
	return nil
}

func promptLogin(form *commands.UserLoginBody) error {
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Email").
			Value(&form.Email).
			Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter an email address")
				}
				return nil
			}),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&form.Password),
		huh.NewInput().
			Title("Two-factor code").
			Description("Leave empty if 2FA is off").
			Value(&form.TOTP),
	)).Run()
	if err != nil {
		return err
	}
	form.Email = strings.TrimSpace(form.Email)
	form.TOTP = strings.TrimSpace(form.TOTP)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	d, err := newDriver(app.cfg, app.logger, nil)
	if err != nil {
		return err
	}
	if d.Settings().Auth != nil {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		start := time.Now()
		_, err := driver.ExecuteOpt(ctx, d, commands.UserLogout{})
		recordREST(app.cfg, "UserLogout", restScope{}, start, err)
		if err != nil {
			// 服务端失败也要清掉本地 token
			printWarning(out, "server logout failed: "+err.Error())
		}
	}
	if err := updateConfig(func(c *config.Config) error {
		c.Auth.Token = ""
		return nil
	}); err != nil {
		return err
	}
	printSuccess(out, "Signed out")
	return nil
}

// updateConfig applies fn to the config on disk so flag overrides are not
// persisted.
func updateConfig(fn func(*config.Config) error) error {
	// Load 出错时仍返回已解析的部分，修改后重新校验
	cfg, _ := config.Load()
	if err := fn(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(cfg)
}
