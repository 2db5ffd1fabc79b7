package security

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"runtime"
)

// ErrPrivileged - процесс запущен с правами администратора
var ErrPrivileged = errors.New("process runs with administrative privileges")

// CheckPrivileges возвращает ErrPrivileged, если процесс запущен от root
// (Unix) или от администратора (Windows). Исполнителю достаточно прав
// учетной записи СУБД.
func CheckPrivileges() error {
	if !isAdmin() {
		return nil
	}
	return fmt.Errorf("%w (user %s); use a dedicated service account", ErrPrivileged, currentUser())
}

func isAdmin() bool {
	if runtime.GOOS != "windows" {
		return os.Geteuid() == 0
	}
	// \\.\PHYSICALDRIVE0 открывается только администратором
	f, err := os.Open(`\\.\PHYSICALDRIVE0`)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
