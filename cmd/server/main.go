package main

import (
	"github.com/ternhq/tern/internal/server"
	"github.com/ternhq/tern/internal/util"
	"github.com/ternhq/tern/pkg/logger"
	"github.com/ternhq/tern/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
