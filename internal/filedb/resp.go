package filedb

import (
	"bytes"
	"fmt"
	"strconv"
)

// The log speaks a RESP-like line protocol. Every command is an array of
// segments: a simple string with the command name, a length-prefixed key,
// then command specific payload.
//
//	*3\r\n+set\r\n$7\r\ntask:42\r\n$13\r\n{"title":"x"}\r\n
//	*2\r\n+del\r\n$7\r\ntask:42\r\n
//	*3\r\n+label\r\n$7\r\ntask:42\r\n+lbl(category,books)\r\n
//	*3\r\n+unlabel\r\n$7\r\ntask:42\r\n+category\r\n
const (
	setCommand     = "set"
	delCommand     = "del"
	labelCommand   = "label"
	unlabelCommand = "unlabel"
)

const labelFn = "lbl"

type respSerializer struct {
	buf bytes.Buffer
}

func (rs *respSerializer) serializeSetCommand(ent *entry) error {
	writeRespArray(3+ent.labelCount(), &rs.buf)
	writeRespSimpleString([]byte(setCommand), &rs.buf)
	writeRespKeyString(ent.key.Bytes(), &rs.buf)
	writeRespBlob(ent.value, &rs.buf)

	for _, name := range ent.sortedLabelNames() {
		writeRespLabel(name, ent.labels[name], &rs.buf)
	}

	return nil
}

func (rs *respSerializer) serializeDelCommand(cmd *deleteCmd) error {
	writeRespArray(2, &rs.buf)
	writeRespSimpleString([]byte(delCommand), &rs.buf)
	writeRespKeyString(cmd.key.Bytes(), &rs.buf)
	return nil
}

func (rs *respSerializer) serializeLabelCommand(cmd *labelCmd) error {
	writeRespArray(2+len(cmd.labels), &rs.buf)
	writeRespSimpleString([]byte(labelCommand), &rs.buf)
	writeRespKeyString(cmd.key.Bytes(), &rs.buf)

	ent := &entry{labels: cmd.labels}
	for _, name := range ent.sortedLabelNames() {
		writeRespLabel(name, cmd.labels[name], &rs.buf)
	}

	return nil
}

func (rs *respSerializer) serializeUnlabelCommand(cmd *unlabelCmd) error {
	writeRespArray(2+len(cmd.names), &rs.buf)
	writeRespSimpleString([]byte(unlabelCommand), &rs.buf)
	writeRespKeyString(cmd.key.Bytes(), &rs.buf)

	for _, n := range cmd.names {
		writeRespSimpleString([]byte(n), &rs.buf)
	}

	return nil
}

func writeRespArray(segments int, buf *bytes.Buffer) {
	buf.WriteRune('*')
	buf.WriteString(strconv.FormatInt(int64(segments), 10))
	buf.WriteRune('\r')
	buf.WriteRune('\n')
}

func writeRespSimpleString(b []byte, buf *bytes.Buffer) {
	buf.WriteRune('+')
	buf.Write(b)
	buf.WriteRune('\r')
	buf.WriteRune('\n')
}

func writeRespLabel(name, value string, buf *bytes.Buffer) {
	writeRespSimpleString([]byte(fmt.Sprintf("%s(%s,%s)", labelFn, name, value)), buf)
}

func writeRespKeyString(b []byte, buf *bytes.Buffer) {
	buf.WriteRune('$')
	buf.WriteString(strconv.FormatInt(int64(len(b)), 10))
	buf.WriteRune('\r')
	buf.WriteRune('\n')
	buf.Write(b)
	buf.WriteRune('\r')
	buf.WriteRune('\n')
}

func writeRespBlob(blob []byte, buf *bytes.Buffer) {
	writeRespKeyString(blob, buf)
}
