package fileserver

import (
	"embed"
	"errors"
	"io/fs"
	"strings"
)

// EmbeddedProducer resolves paths against an embed.FS baked into the
// binary, the Go-native analogue of a classpath resource lookup.
type EmbeddedProducer struct {
	fs   embed.FS
	root string
}

// NewEmbeddedProducer builds a producer serving files under root within
// fsys.
func NewEmbeddedProducer(fsys embed.FS, root string) *EmbeddedProducer {
	return &EmbeddedProducer{fs: fsys, root: root}
}

func (p *EmbeddedProducer) Get(path string) ([]byte, bool, error) {
	clean := strings.TrimPrefix(path, "/")
	full := strings.TrimSuffix(p.root, "/") + "/" + clean
	data, err := p.fs.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
