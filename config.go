// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/internal/log"
	"github.com/btcpsuite/btcpd/internal/version"
	"github.com/btcpsuite/btcpd/mempool"
	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/sampleconfig"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename    = "btcpd.conf"
	defaultDataDirname       = "data"
	defaultLogLevel          = "info"
	defaultLogDirname        = "logs"
	defaultLogFilename       = "btcpd.log"
	defaultMaxMempoolMB      = 300
	defaultTemplateRefresh   = time.Second * 5
	defaultBlockMinSize      = mining.DefaultBlockMinSize
	defaultBlockMaxSize      = mining.DefaultBlockMaxSize
	defaultBlockPrioritySize = mining.DefaultBlockPrioritySize
)

var (
	defaultHomeDir    = btcutil.AppDataDir("btcpd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for btcpd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion       bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile        string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir           string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir            string        `long:"logdir" description:"Directory to log output."`
	DebugLevel        string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	TestNet3          bool          `long:"testnet" description:"Use the test network"`
	RegressionTest    bool          `long:"regtest" description:"Use the regression test network"`
	MinRelayTxFee     float64       `long:"minrelaytxfee" description:"The minimum transaction fee in BTCP/kB to be considered a non-zero fee."`
	NoRelayPriority   bool          `long:"norelaypriority" description:"Do not require free or low-fee transactions to have high priority for relaying"`
	RelayNonStd       bool          `long:"relaynonstd" description:"Relay non-standard transactions regardless of the default settings for the active network."`
	RejectNonStd      bool          `long:"rejectnonstd" description:"Reject non-standard transactions regardless of the default settings for the active network."`
	MaxMempool        uint          `long:"maxmempool" description:"Maximum memory used by the transaction pool in megabytes, 0 for no limit"`
	AddrIndex         bool          `long:"addrindex" description:"Maintain the address and spent indices of the transaction pool"`
	CheckMempool      bool          `long:"checkmempool" description:"Verify the consistency of the transaction pool after every block and refresh"`
	NoFeeEstimator    bool          `long:"nofeeestimator" description:"Do not estimate fees nor keep the estimator state between runs"`
	BlockMinSize      uint32        `long:"blockminsize" description:"Mininum block size in bytes to be used when creating a block"`
	BlockMaxSize      uint32        `long:"blockmaxsize" description:"Maximum block size in bytes to be used when creating a block"`
	BlockPrioritySize uint32        `long:"blockprioritysize" description:"Size in bytes for high-priority/low-fee transactions when creating a block"`
	TemplateRefresh   time.Duration `long:"templaterefresh" description:"How often the cached block template is refreshed.  Valid time units are {s, m, h}.  Minimum 1 second"`
	Generate          bool          `long:"generate" description:"Generate (mine) blocks using the CPU"`
	GenProcLimit      int32         `long:"genproclimit" description:"Number of CPU mining workers, -1 for one per core"`
	MiningAddrs       []string      `long:"miningaddr" description:"Add the specified payment address to the list of addresses to use for generated blocks -- At least one address is required if the generate option is set"`
	Profile           string        `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
	CPUProfile        string        `long:"cpuprofile" description:"Write CPU profile to the specified file"`

	// The fields below are derived from the options above.
	params        *chaincfg.Params
	minRelayTxFee btcutil.Amount
	payouts       []string
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		log.SetLogLevels(debugLevel)
		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := log.SubsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsystems %v"
			return fmt.Errorf(str, subsysID, log.SupportedSubsystems())
		}

		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		log.SetLogLevel(subsysID, logLevel)
	}

	return nil
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// mempoolPolicy returns the relay policy of the transaction pool.
func (cfg *config) mempoolPolicy() mempool.Policy {
	acceptNonStd := !cfg.params.RequireStandard
	switch {
	case cfg.RejectNonStd:
		acceptNonStd = false
	case cfg.RelayNonStd:
		acceptNonStd = true
	}

	return mempool.Policy{
		MaxTxVersion:         mempool.DefaultMaxTxVersion,
		DisableRelayPriority: cfg.NoRelayPriority,
		AcceptNonStd:         acceptNonStd,
		MaxSigOpsPerTx:       mempool.DefaultMaxSigOpsPerTx,
		MinRelayTxFee:        cfg.minRelayTxFee,
		MaxPoolUsage:         int64(cfg.MaxMempool) * 1024 * 1024,
	}
}

// miningPolicy returns the policy of the block template generator.  The
// sizes are clamped by mining.Policy.Normalize.
func (cfg *config) miningPolicy() mining.Policy {
	return mining.Policy{
		BlockMinSize:      cfg.BlockMinSize,
		BlockMaxSize:      cfg.BlockMaxSize,
		BlockPrioritySize: cfg.BlockPrioritySize,
		TxMinFreeFee:      cfg.minRelayTxFee,
	}
}

// createDefaultConfigFile writes the commented sample configuration to
// destinationPath, creating its directory when needed.
func createDefaultConfigFile(destinationPath string) error {
	err := os.MkdirAll(filepath.Dir(destinationPath), 0700)
	if err != nil {
		return err
	}
	return os.WriteFile(destinationPath, []byte(sampleconfig.FileContents),
		0600)
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in btcpd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile:        defaultConfigFile,
		DebugLevel:        defaultLogLevel,
		DataDir:           defaultDataDir,
		LogDir:            defaultLogDir,
		MinRelayTxFee:     mining.DefaultMinRelayTxFee.ToBTC(),
		MaxMempool:        defaultMaxMempoolMB,
		BlockMinSize:      defaultBlockMinSize,
		BlockMaxSize:      defaultBlockMaxSize,
		BlockPrioritySize: defaultBlockPrioritySize,
		TemplateRefresh:   defaultTemplateRefresh,
		GenProcLimit:      -1,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS,
			runtime.GOARCH)
		os.Exit(0)
	}

	// Write the sample config file when the default one is missing.
	if preCfg.ConfigFile == defaultConfigFile {
		if _, err := os.Stat(preCfg.ConfigFile); os.IsNotExist(err) {
			err := createDefaultConfigFile(preCfg.ConfigFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating a default "+
					"config file: %v\n", err)
			}
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n",
				err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	if err := finishConfig(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		log.BtpdLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}

// finishConfig validates the parsed options and derives the network
// parameters, the directories, the relay fee and the mining addresses.
func finishConfig(cfg *config) error {
	const funcName = "loadConfig"

	// Choose the active network params based on the testnet and regression
	// test net flags.  The two can't be selected simultaneously.
	numNets := 0
	cfg.params = &chaincfg.MainNetParams
	if cfg.TestNet3 {
		numNets++
		cfg.params = &chaincfg.TestNet3Params
	}
	if cfg.RegressionTest {
		numNets++
		cfg.params = &chaincfg.RegressionNetParams
	}
	if numNets > 1 {
		str := "%s: The testnet and regtest params can't be used " +
			"together -- choose one of the two"
		return fmt.Errorf(str, funcName)
	}

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir),
		cfg.params.Name)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir),
		cfg.params.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", log.SupportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return fmt.Errorf("%s: %v", funcName, err)
	}

	if cfg.RelayNonStd && cfg.RejectNonStd {
		str := "%s: rejectnonstd and relaynonstd cannot be used " +
			"together -- choose only one"
		return fmt.Errorf(str, funcName)
	}

	// Validate the minrelaytxfee.
	minRelayTxFee, err := btcutil.NewAmount(cfg.MinRelayTxFee)
	if err != nil || minRelayTxFee < 0 ||
		int64(minRelayTxFee) > blockchain.MaxMoney {

		str := "%s: invalid minrelaytxfee: %v"
		return fmt.Errorf(str, funcName, cfg.MinRelayTxFee)
	}
	cfg.minRelayTxFee = minRelayTxFee

	// Limit the block sizes to a sane range.
	policy := cfg.miningPolicy().Normalize()
	cfg.BlockMinSize = policy.BlockMinSize
	cfg.BlockMaxSize = policy.BlockMaxSize
	cfg.BlockPrioritySize = policy.BlockPrioritySize

	if cfg.TemplateRefresh < time.Second {
		str := "%s: the templaterefresh option may not be less " +
			"than 1s -- parsed [%v]"
		return fmt.Errorf(str, funcName, cfg.TemplateRefresh)
	}

	// Check mining addresses are valid and saved parsed versions.
	for _, addr := range cfg.MiningAddrs {
		if _, _, err := txscript.DecodeAddress(addr, cfg.params); err != nil {
			str := "%s: mining address '%s' failed to decode: %v"
			return fmt.Errorf(str, funcName, addr, err)
		}
		cfg.payouts = append(cfg.payouts, addr)
	}

	// Ensure there is at least one mining address when the generate flag
	// is set.
	if cfg.Generate && len(cfg.payouts) == 0 {
		str := "%s: the generate flag is set, but there are no mining " +
			"addresses specified "
		return fmt.Errorf(str, funcName)
	}

	// The pool consistency check is on by default for networks asking
	// for it.
	if cfg.params.DefaultConsistencyChecks {
		cfg.CheckMempool = true
	}

	return nil
}
