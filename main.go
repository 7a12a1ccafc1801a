package main

import "github.com/eshiol/j3-rest-api/cmd"

func main() { cmd.Execute() }
