package main

import (
	"ppbverify/cmd/ppb-verify/commands"
	"ppbverify/lib/util/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()
	commands.ExecuteContext(ctx)
}
