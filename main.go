// The main package for the chunkgen executable.
package main

import "github.com/JakeFAU/chunkgen/cmd"

func main() {
	cmd.Execute()
}
