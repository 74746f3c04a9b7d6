package session

import (
	"os"
	"strings"
)

// FileNameStore keeps the rider's display name in a plain text file so it
// survives process restarts.
type FileNameStore struct {
	Path string
}

func (f FileNameStore) Load() string {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (f FileNameStore) Save(name string) error {
	return os.WriteFile(f.Path, []byte(name+"\n"), 0o600)
}
