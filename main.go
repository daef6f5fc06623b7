package main

import "github.com/wmitsuda/akula/internal/cli"

func main() {
	cli.Execute()
}
