// Command memberkit-installer serves the web installer of the memberkit
// membership application.
package main

import (
	"os"

	"github.com/apimgr/memberkit/src/cli"
)

func main() {
	os.Exit(cli.Execute(buildInfo()))
}
