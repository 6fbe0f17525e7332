package main

import "github.com/javezbak/Jarrarium-Time-Lapse/cmd"

func main() {
	cmd.Execute()
}
