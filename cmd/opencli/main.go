package main

import "opencli/internal/cli"

func main() {
	cli.Execute()
}
