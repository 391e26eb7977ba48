package main

import "mustody-console/cli"

func main() {
	cli.Run()
}
