package main

import "yield-health-alerts/internal/cli"

func main() {
	cli.Execute()
}
