package main

import "github.com/target/notekeeper/cmd/notekeeper-cli/cmd"

func main() {
	cmd.Execute()
}
