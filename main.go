package main

import "github.com/nextlevelbuilder/hookrelay/cmd"

func main() {
	cmd.Execute()
}
