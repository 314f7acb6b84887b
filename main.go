/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package main

import "github.com/fulmenhq/cargo-licenses/cmd"

func main() {
	cmd.Execute()
}
