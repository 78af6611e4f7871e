package main

import (
	"github.com/perchsec/kestrel/cmd"
	"github.com/perchsec/kestrel/internal/config"
)

func main() {
	config.LoadConfig()
	cmd.Execute()
}
