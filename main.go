// The main package for the feedwatch executable.
package main

import (
	"github.com/linkhoard/feedwatch/cmd"
)

func main() {
	cmd.Execute()
}
