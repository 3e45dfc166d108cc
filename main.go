package main

import "tws-bridge/internal/cli"

func main() {
	cli.Execute()
}
