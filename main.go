package main

import "github.com/datastax/custom-tables/cmd"

func main() {
	cmd.Execute()
}
