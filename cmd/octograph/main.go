package main

import (
	"octograph/cmd/octograph/cmd"
)

func main() {
	cmd.Execute()
}
