package main

import (
	"flag"
	"log"

	"github.com/danmuck/distask/internal/config"
)

func main() {
	kind := flag.String("kind", "driver", "config kind: driver")
	output := flag.String("output", "cmd/distaskctl/config.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "cmd/distaskctl/config.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "driver" {
			log.Fatalf("unknown kind: %s", *kind)
		}
		if _, err := config.LoadDriverConfig(*input); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, *input)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
