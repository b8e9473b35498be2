package main

import "github.com/edukit/knackrecon/cmd/knackrecon/cmd"

func main() {
	cmd.Execute()
}
