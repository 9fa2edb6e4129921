package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/MixyLabs/surfsync/pkg/surfsync"
)

var (
	gitCommit  string
	versionTag string
	buildType  string

	verbose    bool
	configPath string
	port       int
)

func init() {
	pflag.BoolVarP(&verbose, "verbose", "v", false, "show verbose logs (useful for debugging surface traffic)")
	pflag.StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	pflag.IntVarP(&port, "port", "p", 0, "UDP port to listen on, overrides listen_port")
	pflag.Parse()
}

func main() {
	logger, err := surfsync.NewLogger(buildType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	named.Infow("Version info",
		"gitCommit", gitCommit,
		"versionTag", versionTag,
		"buildType", buildType)

	if verbose {
		named.Debug("Verbose flag provided, all log messages will be shown")
	}

	d, err := surfsync.NewSurfsync(logger, verbose, configPath, port)
	if err != nil {
		named.Fatalw("Failed to create surfsync object", "error", err)
	}

	if buildType != "" && (versionTag != "" || gitCommit != "") {
		identifier := gitCommit
		if versionTag != "" {
			identifier = versionTag
		}

		d.SetVersion(fmt.Sprintf("Version %s-%s", buildType, identifier))
	}

	if err = d.Initialize(); err != nil {
		named.Errorw("Failed to initialize surfsync", "error", err)
		os.Exit(1)
	}
}
