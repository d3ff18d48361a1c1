package common

import (
	"os"
	"os/user"
)

func IsRunningAsRoot() bool {
	usr, _ := user.Current()
	return usr.Username == "root"
}

func FileExists(name string) bool {
	fi, err := os.Stat(name)
	return err == nil && !fi.IsDir()
}
