package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"

	"txfix/pkg/diagnosis"
	"txfix/pkg/logging"
	"txfix/pkg/mempool"
	"txfix/pkg/service"
	"txfix/pkg/types"
)

const (
	defaultConfigFilename = "txfix.conf"
	defaultLogFilename    = "txfix.log"
	defaultLogLevel       = "info"
	defaultMaxLogRolls    = 8
	defaultRateBurst      = 4
	defaultListen         = "127.0.0.1:8080"
)

var defaultAppDataDir = btcutil.AppDataDir("txfix", false)

// ErrShowSubsystems is returned by Parse when the debug level is "show".
// The caller should list logging.SupportedSubsystems and exit.
var ErrShowSubsystems = errors.New("show subsystems")

// Options are shared by every command.
type Options struct {
	AppDataDir  string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}, or SUBSYS=level pairs. 'show' lists the subsystems."`
	LogFile     string `long:"logfile" description:"Also write logs to this file, rotating it"`
	MaxLogRolls int    `long:"maxlogrolls" description:"The number of rolled log files to keep. Setting to 0 will keep all."`

	Network       string        `short:"n" long:"network" description:"Bitcoin network {mainnet, testnet, testnet4, signet, regtest}"`
	APIURL        string        `long:"apiurl" description:"mempool.space-compatible API root (default depends on network)"`
	Timeout       time.Duration `long:"timeout" description:"Timeout of a single API request"`
	RateLimit     float64       `long:"ratelimit" description:"Maximum API requests per second. 0 disables the limit."`
	RateBurst     int           `long:"rateburst" description:"API request burst allowed by the rate limit"`
	Snapshot      string        `long:"snapshot" description:"Read transactions and mempool state from a JSON snapshot instead of the API"`
	PriceFallback float64       `long:"pricefallback" description:"BTC/USD price used when the API has none. 0 fails the diagnosis instead."`
}

// WebOptions are the options of the web server.
type WebOptions struct {
	Options
	Listen       string   `long:"listen" description:"Address the HTTP server listens on"`
	AllowOrigins []string `long:"alloworigin" description:"CORS origin allowed to call the API. May be repeated. Default allows all."`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		AppDataDir:  defaultAppDataDir,
		DebugLevel:  defaultLogLevel,
		MaxLogRolls: defaultMaxLogRolls,
		Network:     string(types.Mainnet),
		Timeout:     mempool.DefaultTimeout,
		RateBurst:   defaultRateBurst,
	}
}

// DefaultWebOptions returns DefaultOptions plus the web server defaults.
func DefaultWebOptions() WebOptions {
	return WebOptions{
		Options: DefaultOptions(),
		Listen:  defaultListen,
	}
}

// Parse parses args into the parser's data. The config file named by
// --configfile, or txfix.conf in the app data directory, is loaded first so
// the command line takes precedence. A missing default config file is not an
// error.
func Parse(parser *flags.Parser, args []string) ([]string, error) {
	// Pre-parse the command line options to see if an alternative config
	// file was specified. Errors are caught by the final parse below.
	var preCfg Options
	preParser := flags.NewParser(&preCfg, flags.IgnoreUnknown)
	preParser.ParseArgs(args)

	if preCfg.DebugLevel == "show" {
		return nil, ErrShowSubsystems
	}

	appDataDir := defaultAppDataDir
	if preCfg.AppDataDir != "" {
		appDataDir = cleanAndExpandPath(preCfg.AppDataDir)
	}
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	isDefaultConfigFile := configFile == ""
	if isDefaultConfigFile {
		configFile = filepath.Join(appDataDir, defaultConfigFilename)
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		// Non-default config file must exist.
		if !isDefaultConfigFile {
			return nil, err
		}
	} else {
		if err := flags.NewIniParser(parser).ParseFile(configFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configFile, err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	return parser.ParseArgs(args)
}

// IsHelp reports whether err is go-flags' help request.
func IsHelp(err error) bool {
	var fe *flags.Error
	return errors.As(err, &fe) && fe.Type == flags.ErrHelp
}

// Validate checks the options and returns the selected network.
func (o *Options) Validate() (types.Network, error) {
	net, err := types.ParseNetwork(o.Network)
	if err != nil {
		return "", err
	}
	if o.RateLimit < 0 {
		return "", fmt.Errorf("ratelimit must not be negative")
	}
	if o.PriceFallback < 0 {
		return "", fmt.Errorf("pricefallback must not be negative")
	}
	return net, nil
}

// InitLogging applies the debug level and, with a log file configured,
// starts the log rotator. Call logging.Close on shutdown.
func (o *Options) InitLogging() error {
	if o.LogFile != "" {
		logFile := cleanAndExpandPath(o.LogFile)
		if !filepath.IsAbs(logFile) {
			logFile = filepath.Join(o.appDataDir(), "logs", logFile)
		}
		if err := logging.InitLogRotator(logFile, o.MaxLogRolls); err != nil {
			return err
		}
	}
	return logging.ParseAndSetDebugLevels(o.DebugLevel)
}

func (o *Options) appDataDir() string {
	if o.AppDataDir == "" {
		return defaultAppDataDir
	}
	return cleanAndExpandPath(o.AppDataDir)
}

// Provider opens the configured data provider: the snapshot file when one is
// set, otherwise the HTTP API.
func (o *Options) Provider() (diagnosis.Provider, error) {
	if o.Snapshot != "" {
		s, err := mempool.LoadSnapshot(cleanAndExpandPath(o.Snapshot))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	net, err := o.Validate()
	if err != nil {
		return nil, err
	}
	url := o.APIURL
	if url == "" {
		url = mempool.BaseURL(net)
	}
	c := mempool.NewClient(url, o.Timeout)
	c.SetRateLimit(o.RateLimit, o.RateBurst)
	return c, nil
}

// Service creates the service for the configured provider and network.
func (o *Options) Service() (*service.Service, error) {
	net, err := o.Validate()
	if err != nil {
		return nil, err
	}
	p, err := o.Provider()
	if err != nil {
		return nil, err
	}
	return service.New(p, net, o.PriceFallback), nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Do not try to clean the empty string
	if path == "" {
		return ""
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser to
	// otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]

	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}
