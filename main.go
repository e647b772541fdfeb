/*
Copyright © 2025 ALESSIO TONIOLO
*/
package main

import "ollamamq/cmd"

func main() {
	cmd.Execute()
}
