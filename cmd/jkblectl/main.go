// Command jkblectl is a standalone CLI for working with JK BMS protocol
// definitions offline: decoding a captured frame, or opening an
// interactive shell, without needing a running jkbled daemon or a
// connected device.
package main

import "github.com/lowvolt/jkble/cmd/jkblectl/commands"

func main() {
	commands.Execute()
}
