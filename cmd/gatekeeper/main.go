package main

import "github.com/jmcleod/gatekeeper/cmd/gatekeeper/cmd"

func main() {
	cmd.Execute()
}
