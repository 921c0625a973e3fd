package fileio

import (
	"bufio"
	"hash/crc32"
	"os"
)

// BufferedWriter does buffered writes to a file while tracking a CRC32 of everything written
type BufferedWriter struct {
	file      *os.File
	writer    *bufio.Writer
	crc32Hash uint32
}

// NewBufferedWriter creates filename for writing
func NewBufferedWriter(filename string, bufferSize int) (*BufferedWriter, error) {
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &BufferedWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, bufferSize),
	}, nil
}

func (b *BufferedWriter) Write(chunk []byte) (int, error) {
	n, err := b.writer.Write(chunk)
	b.crc32Hash = crc32.Update(b.crc32Hash, crc32.IEEETable, chunk[:n])
	return n, err
}

// Close flushes remaining bytes, syncs and closes the file. It returns the CRC32 of the data written.
func (b *BufferedWriter) Close() (uint32, error) {
	err := b.writer.Flush()
	if err == nil {
		err = b.file.Sync()
	}
	if cerr := b.file.Close(); err == nil {
		err = cerr
	}
	return b.crc32Hash, err
}

// Abort closes the file and removes it
func (b *BufferedWriter) Abort() {
	b.file.Close()
	os.Remove(b.file.Name())
}
