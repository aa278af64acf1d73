package main

import "github.com/ValentinKolb/prefkv/cmd"

func main() {
	cmd.Execute()
}
