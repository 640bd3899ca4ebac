// Command xdccget downloads one pack from an XDCC bot.
//
//	xdccget --server irc.rizon.net --bot "CR-HOLLAND|NEW" --pack 1234 --channel "#news"
//
// Settings are read from the per-user config file (or --config), then
// overridden by any flag given on the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	ircclient "github.com/mahirashab/irc-client"
	"github.com/mahirashab/irc-client/config"
	"github.com/mahirashab/irc-client/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type cliFlags struct {
	configPath string

	server    string
	port      uint16
	nick      string
	password  string
	bot       string
	pack      int
	channels  []string
	directory string

	proxyType string
	proxyHost string
	proxyPort uint16

	maxAttempts int
	logLevel    string
	logFile     string
	quiet       bool
	noColor     bool
}

func newRootCommand() *cobra.Command {
	cmd, _ := newCommand()
	return cmd
}

func newCommand() (*cobra.Command, *cliFlags) {
	flags := &cliFlags{}

	cmd := &cobra.Command{
		Use:           "xdccget",
		Short:         "Download a pack from an XDCC bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&flags.configPath, "config", "c", "", "config file (default: per-user config dir)")
	f.StringVarP(&flags.server, "server", "s", "", "IRC server host")
	f.Uint16Var(&flags.port, "port", config.DefaultPort, "IRC server port")
	f.StringVarP(&flags.nick, "nick", "n", "", "nick to use (default: random)")
	f.StringVar(&flags.password, "password", "", "server password")
	f.StringVarP(&flags.bot, "bot", "b", "", "nick of the XDCC bot")
	f.IntVarP(&flags.pack, "pack", "p", 0, "pack number to request")
	f.StringSliceVar(&flags.channels, "channel", nil, "channel to join before requesting (repeatable)")
	f.StringVarP(&flags.directory, "dir", "d", ".", "download directory")
	f.StringVar(&flags.proxyType, "proxy-type", "", `proxy type, "socks5" or "http"`)
	f.StringVar(&flags.proxyHost, "proxy-host", "", "proxy host")
	f.Uint16Var(&flags.proxyPort, "proxy-port", 0, "proxy port")
	f.IntVar(&flags.maxAttempts, "max-attempts", 0, "attempts before giving up")
	f.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warning, error)")
	f.StringVar(&flags.logFile, "log-file", "", "log file (default: stderr)")
	f.BoolVarP(&flags.quiet, "quiet", "q", false, "no status output")
	f.BoolVar(&flags.noColor, "no-color", false, "disable coloured output")

	cmd.AddCommand(newSaveConfigCommand(flags))
	return cmd, flags
}

func newSaveConfigCommand(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save-config",
		Short: "Write the effective settings to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			path, err := configPath(flags)
			if err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		},
	}
}

func configPath(flags *cliFlags) (string, error) {
	if flags.configPath != "" {
		return flags.configPath, nil
	}
	return config.DefaultPath()
}

// loadConfig reads the config file, then applies every flag that was set.
func loadConfig(cmd *cobra.Command, flags *cliFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
	} else {
		path, pathErr := config.DefaultPath()
		if pathErr != nil {
			cfg = config.Default()
		} else {
			cfg, err = config.LoadOptional(path)
		}
	}
	if err != nil {
		return nil, err
	}

	applyFlags(cmd, flags, cfg)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, flags *cliFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("server") {
		cfg.Server = flags.server
	}
	if changed("port") {
		cfg.Port = flags.port
	}
	if changed("nick") {
		cfg.Nick = flags.nick
	}
	if changed("password") {
		cfg.Password = flags.password
	}
	if changed("bot") {
		cfg.Bot = flags.bot
	}
	if changed("pack") {
		cfg.Pack = flags.pack
	}
	if changed("channel") {
		cfg.Channels = flags.channels
	}
	if changed("dir") {
		cfg.Directory = flags.directory
	}
	if changed("proxy-type") || changed("proxy-host") || changed("proxy-port") {
		if cfg.Proxy == nil {
			cfg.Proxy = &transport.ProxyConfig{}
		}
		if changed("proxy-type") {
			cfg.Proxy.Type = flags.proxyType
		}
		if changed("proxy-host") {
			cfg.Proxy.Host = flags.proxyHost
		}
		if changed("proxy-port") {
			cfg.Proxy.Port = flags.proxyPort
		}
	}
	if changed("max-attempts") {
		cfg.MaxAttempts = flags.maxAttempts
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("log-file") {
		cfg.LogFile = flags.logFile
	}
	if changed("quiet") {
		cfg.Quiet = flags.quiet
	}
	if changed("no-color") {
		cfg.NoColor = flags.noColor
	}
}

// setupLogging points logrus at stderr or the configured file.
func setupLogging(cfg *config.Config) (io.Closer, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)

	if cfg.LogFile == "" {
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return f, nil
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	d, err := ircclient.New(cfg, out)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "run",
		"server":   cfg.Address(),
		"bot":      cfg.Bot,
		"pack":     cfg.Pack,
	}).Info("Starting download")

	_, err = d.Download(ctx)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
