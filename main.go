package main

import "github.com/Mohsinsiddi/w3deploy/cmd"

func main() {
	cmd.Execute()
}
