// The main package for the gramcrawl executable.
package main

import (
	"github.com/JakeFAU/gramcrawl/cmd"
)

func main() {
	cmd.Execute()
}
