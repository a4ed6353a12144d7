package main

import (
	cmd "github.com/matejnovak/govsicrawl/internal/cli"
)

func main() {
	cmd.Execute()
}
