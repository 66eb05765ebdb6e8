package filedb

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrCommandInvalid = errors.New("log command invalid")

type parser struct {
	totalSize      int
	currentCmdSize int
	totalCommands  int
	currentLine    int
}

// parse replays the command log. It returns the number of bytes that formed
// complete commands; a torn tail reports io.ErrUnexpectedEOF so the caller
// can truncate the file back to the last good command.
func (p *parser) parse(r *bufio.Reader, cb func(d deserializable) error) (int, error) {
	for {
		p.currentCmdSize = 0

		firstByte, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return p.totalSize, nil
			}

			return p.totalSize, errors.Wrap(ErrCommandInvalid, err.Error())
		}

		if firstByte == 0 {
			continue
		}

		if err := r.UnreadByte(); err != nil {
			return p.totalSize, errors.Wrap(ErrCommandInvalid, err.Error())
		}

		segments, err := p.resolveRespArrayFromLine(r)
		if err != nil {
			return p.totalSize, err
		}

		cmd, err := p.resolveRespCommand(r)
		if err != nil {
			return p.totalSize, err
		}

		switch cmd {
		case setCommand:
			err = p.parseSetCommand(r, segments, cb)
		case delCommand:
			err = p.parseDelCommand(r, cb)
		case labelCommand:
			err = p.parseLabelCommand(r, segments, cb)
		case unlabelCommand:
			err = p.parseUnlabelCommand(r, segments, cb)
		default:
			err = errors.Wrapf(ErrCommandInvalid, "line #%d - unknown command %q", p.currentLine, cmd)
		}

		if err != nil {
			return p.totalSize, err
		}

		p.totalCommands++
		p.totalSize += p.currentCmdSize
	}
}

func (p *parser) parseSetCommand(r *bufio.Reader, segments int, cb func(d deserializable) error) error {
	key, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	value, err := p.resolveRespBlob(r)
	if err != nil {
		return err
	}

	ent := newEntry(string(key), value)

	// command, key and value take three segments, the rest are labels
	for j := 0; j < segments-3; j++ {
		name, labelValue, err := p.resolveRespLabel(r)
		if err != nil {
			return err
		}
		ent.setLabel(name, labelValue)
	}

	return cb(ent)
}

func (p *parser) parseDelCommand(r *bufio.Reader, cb func(d deserializable) error) error {
	key, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	return cb(&deleteCmd{key: newPK(string(key))})
}

func (p *parser) parseLabelCommand(r *bufio.Reader, segments int, cb func(d deserializable) error) error {
	key, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	labels := make(map[string]string)
	for j := 0; j < segments-2; j++ {
		name, value, err := p.resolveRespLabel(r)
		if err != nil {
			return err
		}
		labels[name] = value
	}

	return cb(&labelCmd{key: newPK(string(key)), labels: labels})
}

func (p *parser) parseUnlabelCommand(r *bufio.Reader, segments int, cb func(d deserializable) error) error {
	key, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	names := make([]string, 0, segments-2)
	for j := 0; j < segments-2; j++ {
		line, err := p.readSimpleString(r)
		if err != nil {
			return err
		}
		names = append(names, line)
	}

	return cb(&unlabelCmd{key: newPK(string(key)), names: names})
}

func (p *parser) resolveRespArrayFromLine(r *bufio.Reader) (int, error) {
	p.currentLine++
	line, err := r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.ErrUnexpectedEOF
		}

		return 0, errors.Wrap(ErrCommandInvalid, err.Error())
	}

	p.currentCmdSize += len(line)

	if len(line) < 4 || line[0] != '*' {
		return 0, errors.Wrapf(ErrCommandInvalid, "line #%d - %q should start a command array", p.currentLine, string(line))
	}

	n, err := strconv.Atoi(string(line[1 : len(line)-2]))
	if err != nil {
		return 0, errors.Wrapf(ErrCommandInvalid, "line #%d - invalid array size: %v", p.currentLine, err)
	}

	return n, nil
}

func (p *parser) resolveRespCommand(r *bufio.Reader) (string, error) {
	return p.readSimpleString(r)
}

func (p *parser) readSimpleString(r *bufio.Reader) (string, error) {
	p.currentLine++
	line, err := r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}

		return "", errors.Wrap(ErrCommandInvalid, err.Error())
	}

	p.currentCmdSize += len(line)

	if len(line) < 3 || line[0] != '+' {
		return "", errors.Wrapf(ErrCommandInvalid, "line #%d - %q is not a simple string", p.currentLine, string(line))
	}

	return string(line[1 : len(line)-2]), nil
}

func (p *parser) resolveRespLabel(r *bufio.Reader) (name, value string, err error) {
	fn, err := p.readSimpleString(r)
	if err != nil {
		return "", "", err
	}

	if !strings.HasPrefix(fn, labelFn+"(") || !strings.HasSuffix(fn, ")") {
		return "", "", errors.Wrapf(ErrCommandInvalid, "line #%d - %q is not a label function", p.currentLine, fn)
	}

	args := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(fn, labelFn+"("), ")"), ",", 2)
	if len(args) != 2 {
		return "", "", errors.Wrapf(ErrCommandInvalid, "line #%d - label function %q needs two arguments", p.currentLine, fn)
	}

	return args[0], args[1], nil
}

func (p *parser) resolveRespKey(r *bufio.Reader) ([]byte, error) {
	return p.resolveRespBlob(r)
}

func (p *parser) resolveRespBlob(r *bufio.Reader) ([]byte, error) {
	p.currentLine++
	sizeLine, err := r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, errors.Wrapf(ErrCommandInvalid, "could not resolve blob at line #%d: %v", p.currentLine, err)
	}

	p.currentCmdSize += len(sizeLine)

	if len(sizeLine) < 4 || sizeLine[0] != '$' {
		return nil, errors.Wrapf(ErrCommandInvalid, "line #%d - %q is invalid", p.currentLine, string(sizeLine))
	}

	blobLen, err := strconv.Atoi(string(sizeLine[1 : len(sizeLine)-2]))
	if err != nil {
		return nil, errors.Wrap(ErrCommandInvalid, err.Error())
	}

	blob := make([]byte, blobLen+2)
	n, err := io.ReadFull(r, blob)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, errors.Wrap(ErrCommandInvalid, err.Error())
	}

	p.currentCmdSize += n

	if blob[blobLen] != '\r' || blob[blobLen+1] != '\n' {
		return nil, errors.Wrapf(ErrCommandInvalid, "line #%d - blob of size %d is not terminated", p.currentLine, blobLen)
	}

	return blob[:blobLen], nil
}
