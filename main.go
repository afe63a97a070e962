package main

import "github.com/yz4230/selfupdate/cmd"

func main() {
	cmd.Execute()
}
