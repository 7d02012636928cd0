package main

import "github.com/yarrow-bio/yarrow/cmd"

func main() {
	cmd.Execute()
}
