package restyutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Output receives formatted request/response exchanges.
type Output interface {
	Write(id string, contents string) error
}

// FilesystemOutput writes every exchange to its own file under a directory.
type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FilesystemOutput{}, fmt.Errorf("create capture dir: %w", err)
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) error {
	return os.WriteFile(filepath.Join(o.directory, id+".txt"), []byte(contents), 0o600)
}

// MemoryOutput keeps exchanges in memory, keyed by id.
type MemoryOutput struct {
	mu        sync.Mutex
	exchanges map[string]string
	order     []string
}

func (o *MemoryOutput) Write(id string, contents string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.exchanges == nil {
		o.exchanges = map[string]string{}
	}
	o.exchanges[id] = contents
	o.order = append(o.order, id)
	return nil
}

// Exchanges returns the written exchanges in write order.
func (o *MemoryOutput) Exchanges() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.exchanges[id])
	}
	return out
}
