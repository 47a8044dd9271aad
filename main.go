package main

import "github.com/jdvries/listkeeper/cmd"

func main() {
	cmd.Execute()
}
