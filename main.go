package main

import "github.com/agentic-research/cspec/cmd"

func main() {
	cmd.Execute()
}
