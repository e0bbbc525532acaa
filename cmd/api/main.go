package main

import (
	"go.uber.org/fx"

	"github.com/millflow/millflow/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
