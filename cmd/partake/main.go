package main

import "github.com/quangdm/partake/internal/cli"

func main() {
	cli.Execute()
}
