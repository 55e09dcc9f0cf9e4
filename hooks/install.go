package hooks

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// marker identifies hook scripts written by Install.
const marker = "# managed by snapkeep"

var hookTemplate = template.Must(template.New("hook").Parse(`#!/bin/sh
` + marker + `
# Snapshots the subvolume around git operations. The exit status is ignored.
{{- if eq .Event "post-checkout" }}
[ "$3" = "1" ] || exit 0
{{ .Command }} hook post-checkout "$1" "$2" --repo "$(git rev-parse --show-toplevel)" || true
{{- else if eq .Event "pre-rebase" }}
{{ .Command }} hook pre-rebase HEAD "${1:-}" --repo "$(git rev-parse --show-toplevel)" || true
{{- else }}
{{ .Command }} hook pre-commit HEAD HEAD --repo "$(git rev-parse --show-toplevel)" || true
{{- end }}
exit 0
`))

// Script renders the hook script for event that runs binary, passing configPath when set.
func Script(event Event, binary, configPath string) (string, error) {
	command := shellQuote(binary)
	if configPath != "" {
		command += " --config " + shellQuote(configPath)
	}
	var buf bytes.Buffer
	err := hookTemplate.Execute(&buf, struct {
		Event   Event
		Command string
	}{event, command})
	return buf.String(), err
}

// Install writes a hook script for every event into hooksDir. Existing hooks not
// written by snapkeep are left alone unless force is set.
func Install(fs afero.Fs, hooksDir, binary, configPath string, force bool) ([]string, error) {
	if err := fs.MkdirAll(hooksDir, 0755); err != nil {
		return nil, err
	}
	var written []string
	for _, event := range Events {
		path := filepath.Join(hooksDir, string(event))
		existing, err := afero.ReadFile(fs, path)
		if err == nil && !strings.Contains(string(existing), marker) && !force {
			return written, fmt.Errorf("%s exists and was not installed by snapkeep, use --force to replace it", path)
		}
		script, err := Script(event, binary, configPath)
		if err != nil {
			return written, err
		}
		if err := afero.WriteFile(fs, path, []byte(script), 0755); err != nil {
			return written, err
		}
		// WriteFile keeps the mode of an existing file.
		if err := fs.Chmod(path, 0755); err != nil {
			return written, err
		}
		log.WithField("path", path).Info("Installed git hook")
		written = append(written, path)
	}
	return written, nil
}

func shellQuote(s string) string {
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}
