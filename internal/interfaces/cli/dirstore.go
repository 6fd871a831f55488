package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// dirStore writes reports and depictions under a local directory.  It backs
// --depict when no object store is configured.
type dirStore struct {
	root string
}

func newDirStore(root string) (*dirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "create output directory").WithDetail(root)
	}
	return &dirStore{root: root}, nil
}

func (d *dirStore) PutReport(_ context.Context, jobID string, report []byte) (string, error) {
	return d.write(jobID+".json", report)
}

// PutDepiction ignores the job id so that depictions land next to each other
// in the output directory.
func (d *dirStore) PutDepiction(_ context.Context, _ string, name string, png []byte) (string, error) {
	return d.write(name, png)
}

func (d *dirStore) write(name string, data []byte) (string, error) {
	path := filepath.Join(d.root, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "write file").WithDetail(path)
	}
	return path, nil
}
