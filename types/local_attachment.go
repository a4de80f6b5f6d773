package types

import (
	"os"
	"sync"
)

// LocalAttachment is an attachment downloaded to local disk. It is owned by
// the pipeline run that fetched it and must be released on every exit path.
type LocalAttachment struct {
	Source Attachment
	Path   string
	MIME   string
	Size   int64

	once sync.Once
	err  error
}

// NewLocalAttachment wraps a downloaded file.
func NewLocalAttachment(source Attachment, path, mime string, size int64) *LocalAttachment {
	return &LocalAttachment{Source: source, Path: path, MIME: mime, Size: size}
}

// Release deletes the local file. It is safe to call more than once; later
// calls return the first result.
func (a *LocalAttachment) Release() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		if a.Path == "" {
			return
		}
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			a.err = err
		}
	})
	return a.err
}
