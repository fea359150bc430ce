package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"lwwdict/internal/config"
	"lwwdict/internal/node"
)

// initLogger initializes a gokit-logger set to the
// according format and log level supplied via cli flag.
func initLogger(format, loglevel string) log.Logger {

	var logger log.Logger
	if strings.ToLower(format) == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	}
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}

	return logger
}

// loadConfig reads the config file and applies the flags that were set
// explicitly on the command line.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configFlag := fs.String("config", "", "Path to a configuration file in TOML syntax.")
	nodeIDFlag := fs.String("node-id", "", "Unique ID of this replica (random if empty).")
	listenFlag := fs.String("listen", "", "gRPC listen address.")
	adminFlag := fs.String("admin", "", "Admin HTTP listen address (empty disables it).")
	peersFlag := fs.String("peers", "", "Comma-separated peers as id=addr.")
	syncFlag := fs.Duration("sync-interval", 0, "Interval between anti-entropy rounds.")
	syncModeFlag := fs.String("sync-mode", "", "Anti-entropy mode: push-pull or push.")
	fanoutFlag := fs.Int("fanout", 0, "Peers contacted per anti-entropy round.")
	snapshotFlag := fs.String("snapshot", "", "Path of the snapshot file (empty disables persistence).")
	snapshotIntervalFlag := fs.Duration("snapshot-interval", 0, "Interval between snapshot writes.")
	loglevelFlag := fs.String("loglevel", "", "Log level: debug, info, warn or error.")
	logformatFlag := fs.String("logformat", "", "Log format: logfmt or json.")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	conf, err := config.Load(*configFlag)
	if err != nil {
		return nil, err
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "node-id":
			conf.NodeID = *nodeIDFlag
		case "listen":
			conf.ListenAddr = *listenFlag
		case "admin":
			conf.AdminAddr = *adminFlag
		case "peers":
			peers, err := config.ParsePeers(*peersFlag)
			if err != nil {
				flagErr = err
				return
			}
			conf.Peers = peers
		case "sync-interval":
			conf.SyncInterval = config.Duration{Duration: *syncFlag}
		case "sync-mode":
			conf.SyncMode = *syncModeFlag
		case "fanout":
			conf.Fanout = *fanoutFlag
		case "snapshot":
			conf.SnapshotPath = *snapshotFlag
		case "snapshot-interval":
			conf.SnapshotInterval = config.Duration{Duration: *snapshotIntervalFlag}
		case "loglevel":
			conf.LogLevel = *loglevelFlag
		case "logformat":
			conf.LogFormat = *logformatFlag
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	conf.EnsureNodeID()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func main() {

	conf, err := loadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "lwwdict: %v\n", err)
		os.Exit(2)
	}

	logger := initLogger(conf.LogFormat, conf.LogLevel)

	n, err := node.New(conf, logger)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to initialize node",
			"err", err,
		)
		os.Exit(1)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- n.Start()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		level.Info(logger).Log("msg", "received signal, shutting down", "signal", sig.String())
	case err := <-errc:
		if err != nil {
			level.Error(logger).Log("msg", "node failed", "err", err)
			n.Stop()
			os.Exit(1)
		}
	}

	stopped := make(chan struct{})
	go func() {
		n.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(30 * time.Second):
		level.Warn(logger).Log("msg", "shutdown timed out")
		os.Exit(1)
	}
}
