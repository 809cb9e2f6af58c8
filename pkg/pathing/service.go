package pathing

import (
	"log"
	"os"
	"path/filepath"
)

// Ensure directories exist on startup
func init() {
	dirs := []string{
		GetDataDir(),
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			err := os.MkdirAll(dir, 0755)
			if err != nil {
				log.Fatal(err)
			}
		}
	}
}

func GetMeterDbPath() string {
	return filepath.Join(GetDataDir(), "ocm-meter.db")
}

func GetDataDir() string {
	return "/var/lib/owl_current_meter"
}

func GetConfigDir() string {
	return "/etc/owl_current_meter"
}
