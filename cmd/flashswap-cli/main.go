package main

import "flashswap-core/cmd/flashswap-cli/cmd"

func main() {
	cmd.Execute()
}
