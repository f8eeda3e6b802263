package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "driver":
		return driverTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const driverTemplate = `workers = 4
log_dir = "logs"
log_level = "info"
partition_policy = "round-robin"
reply_timeout = "30s"

[[libraries]]
name = "linalg"

# [[libraries]]
# name = "custom"
# path = "plugins/custom.so"
`
