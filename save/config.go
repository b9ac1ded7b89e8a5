package save

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
)

const encoreConfigDir = "encore"

// DataDir returns the directory for persistent application data, such as
// the event statistics database.
func DataDir() string {
	return filepath.Join(xdg.DataHome, encoreConfigDir)
}

func openCreateFile(fs afero.Fs, base string, file string) (afero.File, error) {
	dir := filepath.Join(base, encoreConfigDir)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, file)

	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func openCreateConfigFile(fs afero.Fs, file string) (afero.File, error) {
	configDir, err := os.UserConfigDir() // get users config directory, depending on OS
	if err != nil {
		return nil, err
	}

	return openCreateFile(fs, configDir, file)
}
