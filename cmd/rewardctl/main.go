package main

import "github.com/aimerfeng/minerewards/internal/cli"

func main() {
	cli.Execute()
}
