package main

import "github.com/timrc-git/dist-id-shore/cmd"

func main() {
	cmd.Execute()
}
