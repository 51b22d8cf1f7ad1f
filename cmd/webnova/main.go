// Command webnova runs the WebNova socket client tools and development relay.
package main

import (
	"context"
	"os"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
