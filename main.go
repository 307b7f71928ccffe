// The main package for the spirits executable.
package main

import (
	"github.com/troeske/spiritswise-web-crawler-sub002/cmd"
)

func main() {
	cmd.Execute()
}
