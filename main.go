package main

import "github.com/explorl/explorl/cli"

func main() {
	cli.Execute()
}
