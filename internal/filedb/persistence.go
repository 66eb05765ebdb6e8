package filedb

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

var (
	ErrDbFileWriteFailed = errors.New("database file write failed")
	ErrStorageFailed     = errors.New("storage error")
)

type persistence struct {
	strategy PersistenceStrategy
	f        *os.File
	flushes  int
	cursor   int
}

func newPersistence(filepath string, strategy PersistenceStrategy, truncateFileOnOpen bool) (*persistence, error) {
	flags := os.O_CREATE | os.O_RDWR
	if truncateFileOnOpen {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(filepath, flags, 0666)
	if err != nil {
		return nil, errors.Wrapf(ErrStorageFailed, "could not open %s: %s", filepath, err.Error())
	}

	return &persistence{f: f, strategy: strategy}, nil
}

func (p *persistence) close() (err error) {
	defer func() {
		p.f = nil
	}()

	if err = p.f.Sync(); err != nil {
		return errors.Wrapf(err, "could not sync file %s", p.f.Name())
	}

	if err = p.f.Close(); err != nil {
		return errors.Wrapf(err, "could not close file %s", p.f.Name())
	}

	return nil
}

func (p *persistence) load(cb func(d deserializable) error) error {
	prs := &parser{}
	r := bufio.NewReader(p.f)

	n, err := prs.parse(r, cb)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// a torn tail means the process died mid-write: keep every
			// complete command and drop the rest
			if tErr := p.f.Truncate(int64(n)); tErr != nil {
				return errors.Wrapf(tErr, "could not truncate file after parse error")
			}
		} else {
			return err
		}
	}

	pos, err := p.f.Seek(int64(n), io.SeekStart)
	if err != nil {
		return errors.Wrapf(ErrStorageFailed, "could not move the cursor: %s", err.Error())
	}

	p.cursor = int(pos)

	return nil
}

func (p *persistence) save(commands []serializable) error {
	rs := &respSerializer{}

	for _, cmd := range commands {
		if err := cmd.serialize(rs); err != nil {
			return err
		}
	}

	return p.write(rs)
}

func (p *persistence) write(rs *respSerializer) error {
	n, err := p.f.Write(rs.buf.Bytes())
	if err != nil {
		if n > 0 {
			// partial write occurred, roll the file back
			pos, seekErr := p.f.Seek(-int64(n), io.SeekCurrent)
			if seekErr != nil {
				return errors.Wrapf(ErrStorageFailed, "could not seek file %s back by %d: %v", p.f.Name(), n, seekErr)
			}

			if tErr := p.f.Truncate(pos); tErr != nil {
				return errors.Wrapf(tErr, "could not truncate file %s", p.f.Name())
			}
		}

		_ = p.f.Sync()
		return errors.Wrap(ErrDbFileWriteFailed, err.Error())
	}

	if p.strategy == Sync {
		if err := p.f.Sync(); err != nil {
			return errors.Wrapf(err, "could not sync file %s", p.f.Name())
		}
	}

	p.flushes++
	p.cursor += rs.buf.Len()
	return nil
}

func (p *persistence) sync() error {
	if err := p.f.Sync(); err != nil {
		return errors.Wrapf(err, "could not sync file %s", p.f.Name())
	}
	return nil
}

// writeAndSwap atomically replaces the log with the serialized snapshot by
// writing a temp file and renaming it over the original.
func (p *persistence) writeAndSwap(rs *respSerializer) error {
	tmpName := p.f.Name() + ".tmp"
	tmpF, err := os.Create(tmpName)
	if err != nil {
		return errors.Wrapf(err, "vacuum could not create %s", tmpName)
	}

	defer func() {
		_ = tmpF.Close()
		_ = os.RemoveAll(tmpName)
	}()

	n, err := tmpF.Write(rs.buf.Bytes())
	if err != nil {
		return errors.Wrapf(err, "vacuum could not write into %s", tmpName)
	}

	if n != rs.buf.Len() {
		return errors.Wrapf(ErrDbFileWriteFailed, "vacuum wrote %d of %d bytes into %s", n, rs.buf.Len(), tmpName)
	}

	if err := tmpF.Sync(); err != nil {
		return errors.Wrapf(err, "vacuum could not sync %s", tmpName)
	}

	oldName := p.f.Name()
	if err := p.f.Close(); err != nil {
		return errors.Wrapf(err, "vacuum could not close %s to swap it", oldName)
	}

	if rnErr := os.Rename(tmpName, oldName); rnErr != nil {
		resultErr := errors.Wrapf(rnErr, "vacuum could not swap %s for %s", oldName, tmpName)
		p.f, err = os.OpenFile(oldName, os.O_CREATE|os.O_RDWR, 0666)
		if err != nil {
			return errors.Wrapf(resultErr, "and could not reopen old file: %s", err.Error())
		}
		return resultErr
	}

	p.f, err = os.OpenFile(oldName, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return errors.Wrapf(err, "could not reopen swapped file %s", oldName)
	}

	pos, err := p.f.Seek(int64(n), io.SeekStart)
	if err != nil {
		return errors.Wrapf(ErrStorageFailed, "could not move the cursor in file %s: %s", oldName, err.Error())
	}

	p.cursor = int(pos)

	return nil
}
