package main

import "github.com/agentic-research/filetree/cmd"

func main() {
	cmd.Execute()
}
