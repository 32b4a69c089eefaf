package main

import "github.com/ValentinKolb/sKV/cmd"

func main() {
	cmd.Execute()
}
