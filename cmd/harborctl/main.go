package main

import (
	"os"

	"github.com/jeffvan302/fileharbor/cmd/harborctl/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		commands.PrintErr("%v", err)
		os.Exit(1)
	}
}
