package main

import (
	"os"

	"github.com/ticketdesk/orderbot/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger.InitLogger()

	if err := newRootCmd().Execute(); err != nil {
		logger.GetLogger().Errorw("Command failed", "error", err)
		_ = logger.Close()
		os.Exit(1)
	}
	_ = logger.Close()
}
