package main

import "github.com/nextlevelbuilder/replyclaw/cmd"

func main() {
	cmd.Execute()
}
