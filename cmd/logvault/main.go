package main

import (
	"flag"
	"fmt"
	"os"

	"logvault/internal/app"
	apperrors "logvault/pkg/errors"
)

// Exit codes, distinct so an operator's process supervisor can tell
// configuration mistakes from runtime failures at a glance.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitIndexCorrupt   = 2
	exitBindFailure    = 3
	exitUnexpectedStop = 4
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		if envConfigFile := os.Getenv("LOGVAULT_CONFIG_FILE"); envConfigFile != "" {
			configFile = envConfigFile
		} else {
			configFile = "/etc/logvault/config.yaml"
		}
	}

	fmt.Printf("using configuration file: %s\n", configFile)

	application, err := app.New(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create application: %v\n", err)
		os.Exit(exitCodeFor(err))
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a startup/runtime failure onto the process exit code
// a supervisor should act on.
func exitCodeFor(err error) int {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return exitUnexpectedStop
	}
	switch appErr.Code {
	case apperrors.CodeConfigInvalid:
		return exitConfigError
	case apperrors.CodeSegmentCorrupt, apperrors.CodeIndexDegraded:
		return exitIndexCorrupt
	case apperrors.CodeFileIO:
		return exitBindFailure
	default:
		return exitUnexpectedStop
	}
}
