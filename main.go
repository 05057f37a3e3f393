// main - main entry-point to acquiring commands through cobra
// individual commands are outlined in ./cmd/
package main

import (
	"github.com/brave-intl/acquiring-go/cmd"
	"github.com/brave-intl/acquiring-go/libs/logging"

	// pull in payments service. setup code is in init
	_ "github.com/brave-intl/acquiring-go/services/payments/cmd"
)

var (
	// variables will be overwritten at build time
	version   string
	commit    string
	buildTime string
)

func main() {
	defer func() {
		if logging.Writer != nil {
			logging.Writer.Close()
		}
	}()
	cmd.Execute(version, commit, buildTime)
}
