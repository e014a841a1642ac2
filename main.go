package main

import (
	"github.com/AgentIsComing/live-screen-share-releases/cmd"
	"github.com/AgentIsComing/live-screen-share-releases/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
