package main

import "github.com/dmap-io/dmap/cmd"

func main() {
	cmd.Execute()
}
