package main

import "github.com/vyrodovalexey/cfdproxy/internal/cli"

func main() {
	cli.Execute()
}
