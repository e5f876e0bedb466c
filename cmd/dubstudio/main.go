package main

import "github.com/forPelevin/dubstudio/internal/cli"

func main() {
	cli.Main()
}
