package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/waveline-ai/waveline/pkg/types"
)

// maxLineSize bounds a single transcript line. Entries are metadata
// plus message content, so a megabyte is already generous.
const maxLineSize = 1024 * 1024

// ReadFile parses a JSONL transcript file. Corrupt or unrecognized
// lines are skipped with a warning, so one bad line never costs the
// rest of the file.
func ReadFile(path string) ([]types.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	return parseEntries(f, path)
}

func parseEntries(r io.Reader, path string) ([]types.Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var entries []types.Entry
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry types.Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Warn().
				Str("file", path).
				Int("line", lineNo).
				Err(err).
				Msg("skipping corrupt session line")
			continue
		}

		// Old transcripts carry only a role on message lines.
		if entry.Type == "" {
			entry.Type = entry.Role
		}
		if entry.Type == "" {
			log.Warn().
				Str("file", path).
				Int("line", lineNo).
				Msg("skipping session line without type or role")
			continue
		}
		if !types.ValidEntryKind(entry.Type) {
			log.Warn().
				Str("file", path).
				Int("line", lineNo).
				Str("type", entry.Type).
				Msg("skipping session line with unknown type")
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read session file: %w", err)
	}

	return entries, nil
}
