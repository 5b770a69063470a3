package digest

import (
	"os"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

func openRegular(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ezerr.Wrapf(ezerr.IO, err, "opening %s to digest", path)
	}
	return f, nil
}
