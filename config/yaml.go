package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrMultipleDocuments = errors.New("config must contain a single yaml document")

// parseYaml expands ${ENV} references and decodes exactly one strict yaml document.
func parseYaml(out interface{}, blob []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(blob)))))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("can't parse yaml: %w", err)
	}
	var extra interface{}
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return ErrMultipleDocuments
	}
	return nil
}
