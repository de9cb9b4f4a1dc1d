package main

import (
	"calsync/internal/app"
	"calsync/internal/config"
)

func main() {
	cfg := config.GetConfig()

	app.Run(cfg)
}
