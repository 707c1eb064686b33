// Package main is the entry point for the quayside executable.
package main

import "github.com/quayside/quayside/cmd"

func main() {
	cmd.Execute()
}
