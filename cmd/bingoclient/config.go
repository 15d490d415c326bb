package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Wardmisp/Bingo/internal/poller"
)

type Config struct {
	autoStream        bool
	bind              string
	databaseURL       string
	pollErrorPolicy   string
	pollInterval      time.Duration
	port              int
	reconnectDelay    time.Duration
	requestTimeout    time.Duration
	serverURL         string
	stateFile         string
	streamIdleTimeout time.Duration
	verbose           bool
	version           bool
}

func (c *Config) validate() error {
	u, err := url.Parse(c.serverURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid --server-url (must be an http or https URL): %q", c.serverURL)
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if _, err := poller.ParseErrorPolicy(c.pollErrorPolicy); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"--poll-interval":       c.pollInterval,
		"--reconnect-delay":     c.reconnectDelay,
		"--request-timeout":     c.requestTimeout,
		"--stream-idle-timeout": c.streamIdleTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive: %s", name, d)
		}
	}
	if c.stateFile == "" && c.databaseURL == "" {
		return errors.New("one of --state-file or --database-url is required")
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BINGO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "bingoclient",
		Short:         "Keeps a bingo session in sync with the game server and serves it to a local UI.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.BoolVar(&cfg.autoStream, "auto-stream", true, "load the card and open the number stream once the game starts (env: BINGO_AUTO_STREAM)")
	fs.StringVarP(&cfg.bind, "bind", "b", "127.0.0.1", "address to bind the local UI to (env: BINGO_BIND)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres DSN to keep the session in instead of --state-file (env: BINGO_DATABASE_URL)")
	fs.StringVar(&cfg.pollErrorPolicy, "poll-error-policy", string(poller.ContinueOnError), "continue or stop polling after a failed roster fetch (env: BINGO_POLL_ERROR_POLICY)")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", poller.DefaultInterval, "time between roster fetches (env: BINGO_POLL_INTERVAL)")
	fs.IntVarP(&cfg.port, "port", "p", 8090, "port to serve the local UI on (env: BINGO_PORT)")
	fs.DurationVar(&cfg.reconnectDelay, "reconnect-delay", 5*time.Second, "wait before reopening a failed number stream (env: BINGO_RECONNECT_DELAY)")
	fs.DurationVar(&cfg.requestTimeout, "request-timeout", 10*time.Second, "timeout for each game server request (env: BINGO_REQUEST_TIMEOUT)")
	fs.StringVarP(&cfg.serverURL, "server-url", "s", "http://localhost:5000", "base URL of the game server (env: BINGO_SERVER_URL)")
	fs.StringVar(&cfg.stateFile, "state-file", defaultStateFile(), "file the current session is saved to (env: BINGO_STATE_FILE)")
	fs.DurationVar(&cfg.streamIdleTimeout, "stream-idle-timeout", 30*time.Second, "fail the number stream after this long without data (env: BINGO_STREAM_IDLE_TIMEOUT)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log debug output (env: BINGO_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: BINGO_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("bingoclient v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
