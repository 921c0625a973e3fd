package fileio

import (
	"bufio"
	"os"
)

// BufferedReader does buffered file reads
type BufferedReader struct {
	file   *os.File
	reader *bufio.Reader
	size   int64
}

// OpenBufferedReader opens filename for reading or returns error upon failing to do so
func OpenBufferedReader(filename string, chunkSize int) (*BufferedReader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &BufferedReader{
		file:   file,
		reader: bufio.NewReaderSize(file, chunkSize),
		size:   info.Size(),
	}, nil
}

// Size is the file length when it was opened
func (b *BufferedReader) Size() int64 {
	return b.size
}

func (b *BufferedReader) Read(p []byte) (int, error) {
	return b.reader.Read(p)
}

func (b *BufferedReader) Close() error {
	return b.file.Close()
}
