package main

import "github.com/stribert/striberts-quaaxtm-sub002/cmd"

func main() {
	cmd.Execute()
}
