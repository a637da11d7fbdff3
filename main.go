// sdload reads and writes device flash over the streaming download protocol.
package main

import "sdload/cmd"

func main() {
	cmd.Execute()
}
