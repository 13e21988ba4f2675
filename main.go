// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/honeypotd/ssh-honeypotd/cmd/honeypotd"

func main() {
	cmd.Execute()
}
