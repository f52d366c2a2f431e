package main

import "github.com/yokoszn/CreatureGRC/internal/cli"

func main() {
	cli.Execute()
}
