package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// FileStore keeps one file per print under <root>/<driver>/<devtype>/<finger>,
// each path element in lowercase hex
type FileStore struct {
	root   string
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the root directory if needed
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create print directory: %w", err)
	}
	return &FileStore{
		root:   root,
		logger: logger.With(zap.String("store", "file"), zap.String("root", root)),
	}, nil
}

// Path returns the file that holds key
func (s *FileStore) Path(key PrintKey) string {
	return filepath.Join(s.root,
		fmt.Sprintf("%04x", uint16(key.DriverID)),
		fmt.Sprintf("%04x", uint16(key.DevType)),
		fmt.Sprintf("%x", int(key.Finger)),
	)
}

// Save writes through a temporary file so a crash never leaves a partial print
func (s *FileStore) Save(ctx context.Context, key PrintKey, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}

	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create print directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".print-*")
	if err != nil {
		return fmt.Errorf("failed to create print file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write print: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write print: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store print: %w", err)
	}

	s.logger.Debug("Print saved", zap.Stringer("key", key), zap.Int("size", len(data)))
	return nil
}

// Load reads the print stored under key
func (s *FileStore) Load(ctx context.Context, key PrintKey) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", driver.ErrPrintNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read print: %w", err)
	}
	return data, nil
}

// Delete removes the print stored under key
func (s *FileStore) Delete(ctx context.Context, key PrintKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	err := os.Remove(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", driver.ErrPrintNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("failed to delete print: %w", err)
	}

	s.logger.Debug("Print deleted", zap.Stringer("key", key))
	return nil
}

// List walks the three directory levels. Entries whose names are not valid
// hex codes are ignored.
func (s *FileStore) List(ctx context.Context) ([]PrintKey, error) {
	keys := make([]PrintKey, 0)

	drivers, err := hexEntries(s.root, true, 0xffff)
	if err != nil {
		return nil, err
	}

	for _, d := range drivers {
		driverDir := filepath.Join(s.root, d.name)
		devtypes, err := hexEntries(driverDir, true, 0xffff)
		if err != nil {
			return nil, err
		}

		for _, t := range devtypes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			fingers, err := hexEntries(filepath.Join(driverDir, t.name), false, uint64(devicetypes.RightLittle))
			if err != nil {
				return nil, err
			}

			keys = append(keys, lo.FilterMap(fingers, func(f hexEntry, _ int) (PrintKey, bool) {
				key := PrintKey{
					DriverID: devicetypes.DriverID(d.value),
					DevType:  devicetypes.DevType(t.value),
					Finger:   devicetypes.Finger(f.value),
				}
				return key, key.Validate() == nil
			})...)
		}
	}

	slices.SortFunc(keys, func(a, b PrintKey) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
	return keys, nil
}

type hexEntry struct {
	name  string
	value uint64
}

// hexEntries lists the directories (or regular files) of dir named by a hex
// number no larger than limit
func hexEntries(dir string, dirs bool, limit uint64) ([]hexEntry, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	return lo.FilterMap(entries, func(e os.DirEntry, _ int) (hexEntry, bool) {
		if e.IsDir() != dirs || (!dirs && !e.Type().IsRegular()) {
			return hexEntry{}, false
		}
		v, err := strconv.ParseUint(e.Name(), 16, 16)
		if err != nil || v > limit {
			return hexEntry{}, false
		}
		return hexEntry{name: e.Name(), value: v}, true
	}), nil
}
