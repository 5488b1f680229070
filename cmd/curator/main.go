package main

import (
	"curator/cmd/cmd"
	"curator/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
