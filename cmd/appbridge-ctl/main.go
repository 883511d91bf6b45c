package main

import "github.com/appbridge/appbridge/cmd/appbridge-ctl/cmd"

func main() {
	cmd.Execute()
}
