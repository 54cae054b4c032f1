// Command servicekit runs the service skeleton: it discovers the configured
// backends, connects them and serves the status endpoints until shutdown.
package main

import (
	"github.com/nimburion/servicekit/pkg/cli"
)

func main() {
	cli.Execute(cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:        "servicekit",
		Description: "Service skeleton managing relational, document and key-value backends",
		EnvPrefix:   "APP",
	}))
}
