package main

import "github.com/thereayou/accounts/cmd/accounts/cmd"

func main() {
	cmd.Execute()
}
