package main

import (
	"go.uber.org/fx"

	"github.com/macina-app/macina/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
