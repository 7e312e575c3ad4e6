// ./main.go
package main

import (
	"github.com/xkilldash9x/pagebridge/cmd"
)

// main is the entry point for the pagebridge CLI.
func main() {
	cmd.Execute()
}
