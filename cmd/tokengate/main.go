package main

import "github.com/acoghlan/tokengate/cmd/tokengate/cmd"

func main() {
	cmd.Execute()
}
