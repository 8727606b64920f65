package main

import "github.com/mcpglass/mcpglass/cmd/mcpglass/cmd"

func main() {
	cmd.Execute()
}
