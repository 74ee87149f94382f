// Package schemas ships the JSON schemas for the tuning document and the
// observer wire messages.
package schemas

import "embed"

//go:embed *.schema.json
var FS embed.FS

// Read returns the named schema document.
func Read(name string) (string, error) {
	b, err := FS.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
