// Command userdatactl administers the userdata store.
package main

import "github.com/mcoot/userdata/internal/cli"

func main() {
	cli.Execute()
}
