package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/observability"
)

func main() {
	a := newApp(os.Stdout)
	err := a.rootCmd().ExecuteContext(context.Background())
	observability.Sync()
	if err != nil {
		if a.cfg != nil {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
