// The main package for the menu-crawler executable.
package main

import (
	"github.com/restomenu/menu-crawler/cmd"
)

func main() {
	cmd.Execute()
}
