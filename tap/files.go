package tap

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
)

// ConfigFile is one layered config source.
type ConfigFile struct {
	Name   string
	Reader io.Reader
	Length int
}

// ReadConfigFile loads the file at name into memory.
func ReadConfigFile(name string) (ConfigFile, error) {
	var result ConfigFile
	b, err := os.ReadFile(name)
	if err == nil {
		result.Name = name
		result.Reader = bytes.NewReader(b)
		result.Length = len(b)
	}
	return result, err
}

type EmbeddedFS interface {
	Open(name string) (fs.File, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

// EmbeddedSchemas reads stream schemas named <stream>.json from Root.
type EmbeddedSchemas struct {
	Root  string
	Files EmbeddedFS
}

// Find returns the schema file for stream. ok is false when there is none.
func (es EmbeddedSchemas) Find(stream string) (data []byte, ok bool, err error) {
	name := path.Join(es.Root, stream+".json")
	data, err = es.Files.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Names lists the streams with an embedded schema.
func (es EmbeddedSchemas) Names() ([]string, error) {
	files, err := es.Files.ReadDir(es.Root)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		result = append(result, strings.TrimSuffix(file.Name(), ".json"))
	}
	return result, nil
}
