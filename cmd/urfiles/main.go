package main

import "github.com/gitter-badger/urfiles/cmd/urfiles/cmd"

func main() {
	cmd.Execute()
}
