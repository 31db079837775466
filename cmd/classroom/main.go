package main

import (
	"log/slog"

	"github.com/liveclass/classroom/cmd/classroom/cmd"
	"github.com/liveclass/classroom/internal/logging"
)

func main() {
	// Keep the dashboard clean unless LOG_LEVEL asks for more
	logging.Init(slog.LevelError)
	cmd.Execute()
}
