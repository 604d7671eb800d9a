package main

import (
	"propdata-backend/cmd/collector/commands"
	"propdata-backend/lib/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()
	commands.ExecuteContext(ctx)
}
