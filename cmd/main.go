package main

import (
	"github.com/covacitrees/oms/internal/app"
	"github.com/covacitrees/oms/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
