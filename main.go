package main

import (
	"supabasemcp/cmd"
)

func main() {
	cmd.Execute()
}
