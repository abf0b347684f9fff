package main

import (
	"context"
	"errors"
	"os"

	"github.com/pitabwire/util"

	"github.com/pitabwire/qdash"
)

func main() {
	ctx, svc := qdash.NewService("qdash")

	if err := svc.Run(ctx, ""); err != nil && !errors.Is(err, context.Canceled) {
		util.Log(ctx).WithError(err).Error("service run failed")
		os.Exit(1)
	}
}
