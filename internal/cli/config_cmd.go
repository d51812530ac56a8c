package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/lanternchat/sdk-go/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := renderConfig(app.cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Keys:\n  " + strings.Join(settableKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		set, ok := configSetters[key]
		if !ok {
			return fmt.Errorf("unknown key %q", key)
		}
		if err := updateConfig(func(c *config.Config) error { return set(c, value) }); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s = %s", key, value))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
}

// renderConfig marshals cfg with the token hidden.
func renderConfig(cfg *config.Config) ([]byte, error) {
	c := *cfg
	if c.Auth.Token != "" {
		c.Auth.Token = redact(c.Auth.Token)
	}
	return yaml.MarshalWithOptions(&c, yaml.Indent(2))
}

func redact(token string) string {
	prefix, _, ok := strings.Cut(token, " ")
	if !ok {
		return "[REDACTED]"
	}
	return prefix + " [REDACTED]"
}

var configSetters = map[string]func(*config.Config, string) error{
	"server.uri":       func(c *config.Config, v string) error { c.Server.URI = v; return nil },
	"server.encoding":  func(c *config.Config, v string) error { c.Server.Encoding = v; return nil },
	"server.userAgent": func(c *config.Config, v string) error { c.Server.UserAgent = v; return nil },
	"server.timeout":   func(c *config.Config, v string) error { c.Server.Timeout = v; return nil },
	"gateway.compress": func(c *config.Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Gateway.Compress = b
		return err
	},
	"gateway.intents": func(c *config.Config, v string) error {
		var names []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		if _, err := parseIntents(names); err != nil {
			return err
		}
		c.Gateway.Intents = names
		return nil
	},
	"gateway.reconnectMin": func(c *config.Config, v string) error { c.Gateway.ReconnectMin = v; return nil },
	"gateway.reconnectMax": func(c *config.Config, v string) error { c.Gateway.ReconnectMax = v; return nil },
	"upload.chunkSize": func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Upload.ChunkSize = n
		return err
	},
	"journal.enabled": func(c *config.Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Journal.Enabled = b
		return err
	},
	"journal.path": func(c *config.Config, v string) error { c.Journal.Path = v; return nil },
	"log.level":    func(c *config.Config, v string) error { c.Log.Level = v; return nil },
	"log.dir":      func(c *config.Config, v string) error { c.Log.Dir = v; return nil },
	"metrics.addr": func(c *config.Config, v string) error { c.Metrics.Addr = v; return nil },
}

func settableKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
