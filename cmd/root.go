package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/pullq/internal/config"
	"github.com/tanq16/pullq/internal/utils"
)

var (
	configPath    string
	dbPath        string
	outputDir     string
	workers       int
	maxPasses     int
	passBackoff   time.Duration
	runTimeout    time.Duration
	runRetries    int
	simulate      bool
	debug         bool
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	method        string
	s3Profile     string
	s3Region      string
)

var PullqVersion = "dev"

// cfg is resolved before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "pullq",
	Short:   "pullq is a persistent, resumable download queue",
	Version: PullqVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		applyFlags(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
		utils.InitLogger(cfg.Debug)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlags overrides config values with flags the user actually set.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		c.DBPath = dbPath
	}
	if flags.Changed("output") {
		c.OutputDir = outputDir
	}
	if flags.Changed("workers") {
		c.MaxConcurrent = workers
	}
	if flags.Changed("max-passes") {
		c.MaxPasses = maxPasses
	}
	if flags.Changed("pass-backoff") {
		c.PassBackoff = config.Duration{Duration: passBackoff}
	}
	if flags.Changed("run-timeout") {
		c.RunTimeout = config.Duration{Duration: runTimeout}
	}
	if flags.Changed("run-retries") {
		c.RunRetries = runRetries
	}
	if flags.Changed("simulate") {
		c.Simulate = simulate
	}
	if flags.Changed("debug") {
		c.Debug = debug
	}
	if flags.Changed("timeout") {
		c.HTTP.Timeout = config.Duration{Duration: timeout}
	}
	if flags.Changed("keep-alive-timeout") {
		c.HTTP.KeepAliveTimeout = config.Duration{Duration: kaTimeout}
	}
	if flags.Changed("user-agent") {
		c.HTTP.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		c.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		c.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		c.HTTP.ProxyPassword = proxyPassword
	}
	if flags.Changed("header") {
		if c.HTTP.Headers == nil {
			c.HTTP.Headers = make(map[string]string)
		}
		for k, v := range utils.ParseHeaderArgs(headers) {
			c.HTTP.Headers[k] = v
		}
	}
	if flags.Changed("method") {
		c.HTTP.Method = method
	}
	if flags.Changed("s3-profile") {
		c.S3.Profile = s3Profile
	}
	if flags.Changed("s3-region") {
		c.S3.Region = s3Region
	}
}

func httpClientConfig(c *config.Config) utils.HTTPClientConfig {
	proxy, username, password := c.HTTP.Proxy, c.HTTP.ProxyUsername, c.HTTP.ProxyPassword
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(proxy)
	if proxy != "" && err == nil && parsedProxy.User != nil && username == "" {
		username = parsedProxy.User.Username()
		if pass, set := parsedProxy.User.Password(); set {
			password = pass
		}
		parsedProxy.User = nil
		proxy = parsedProxy.String()
	}
	return utils.HTTPClientConfig{
		Timeout:        c.HTTP.Timeout.Duration,
		KATimeout:      c.HTTP.KeepAliveTimeout.Duration,
		ProxyURL:       proxy,
		ProxyUsername:  username,
		ProxyPassword:  password,
		UserAgent:      c.HTTP.UserAgent,
		Headers:        c.HTTP.Headers,
		HighThreadMode: c.MaxConcurrent == 0 || c.MaxConcurrent > 8,
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to TOML config file (default $XDG_CONFIG_HOME/pullq/config.toml)")
	flags.StringVar(&dbPath, "db", "", "Path to the queue database (default $XDG_CACHE_HOME/pullq/queue.db)")
	flags.StringVarP(&outputDir, "output", "o", ".", "Directory downloads are saved to")
	flags.IntVarP(&workers, "workers", "w", 0, "Maximum parallel downloads per pass (0 for one per queued item)")
	flags.IntVar(&maxPasses, "max-passes", 5, "Maximum passes per run before giving up (0 for unlimited)")
	flags.DurationVar(&passBackoff, "pass-backoff", 2*time.Second, "Wait before the second pass, doubled for every later pass")
	flags.DurationVar(&runTimeout, "run-timeout", 10*time.Minute, "Deadline for a single run")
	flags.IntVar(&runRetries, "run-retries", 3, "Extra attempts for a run that failed with a retryable error")
	flags.BoolVar(&simulate, "simulate", false, "Serve generated bytes instead of touching the network")
	flags.DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection timeout (eg. 5s, 10m)")
	flags.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	flags.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (\"randomize\" picks a browser agent per request)")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	flags.StringVar(&method, "method", "GET", "HTTP method used to fetch (GET or POST)")
	flags.StringVar(&s3Profile, "s3-profile", "default", "AWS shared config profile for s3:// links")
	flags.StringVar(&s3Region, "s3-region", "", "AWS region for s3:// links (resolved per bucket if empty)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}
