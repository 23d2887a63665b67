package main

import "github.com/yurimoinhos/flowpay/cmd"

func main() {
	cmd.Execute()
}
