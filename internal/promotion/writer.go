package promotion

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/normanking/kaitd/internal/kaitkerr"
)

// markerBegin/markerEnd bracket one insight's rendered line in a guidance
// file so a later pass can find and remove exactly that line on demotion
// without disturbing hand-written surrounding content, the same
// delimited-block extraction idea the teacher's skill distiller uses to
// pull a generated section out of a larger response body.
const (
	markerBegin = "<!-- kaitd:insight:%s -->"
	markerEnd   = "<!-- /kaitd:insight:%s -->"
)

// renderBlock formats one insight's markers and its rendered markdown line.
func renderBlock(key, line string) string {
	return fmt.Sprintf(markerBegin, key) + "\n" + line + "\n" + fmt.Sprintf(markerEnd, key) + "\n"
}

// upsertBlock writes or replaces key's block in path, appending it if no
// block for key exists yet. Creates path if absent.
func upsertBlock(path, key, line string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return kaitkerr.Transient(component, "read_guidance_file", err)
	}

	content := string(existing)
	begin := fmt.Sprintf(markerBegin, key)
	end := fmt.Sprintf(markerEnd, key)
	block := renderBlock(key, line)

	if start := strings.Index(content, begin); start >= 0 {
		stop := strings.Index(content[start:], end)
		if stop >= 0 {
			stop = start + stop + len(end)
			if stop < len(content) && content[stop] == '\n' {
				stop++
			}
			content = content[:start] + block + content[stop:]
		} else {
			content += block
		}
	} else {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += block
	}

	return writeFileAtomic(path, content)
}

// removeBlock deletes key's block from path, if present. A missing file
// or missing block is not an error: demotion can race a file that was
// never written, or has already been cleaned up by a prior pass.
func removeBlock(path, key string) error {
	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return kaitkerr.Transient(component, "read_guidance_file", err)
	}

	content := string(existing)
	begin := fmt.Sprintf(markerBegin, key)
	end := fmt.Sprintf(markerEnd, key)

	start := strings.Index(content, begin)
	if start < 0 {
		return nil
	}
	stop := strings.Index(content[start:], end)
	if stop < 0 {
		return nil
	}
	stop = start + stop + len(end)
	if stop < len(content) && content[stop] == '\n' {
		stop++
	}
	content = content[:start] + content[stop:]

	return writeFileAtomic(path, content)
}

// writeFileAtomic writes content to path via a temp file plus rename, the
// same atomic-replace pattern internal/cognitive uses for its snapshot
// file, applied here to guidance files that the editor's agent and kaitd
// both read and write.
func writeFileAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return kaitkerr.Transient(component, "write_guidance_tmp", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return kaitkerr.Transient(component, "rename_guidance_file", err)
	}
	return nil
}

// listBlockKeys returns every insight key with a live block in path, used
// by tests to assert exact promotion/demotion effects.
func listBlockKeys(path string) []string {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var keys []string
	for _, line := range strings.Split(string(content), "\n") {
		if !strings.HasPrefix(line, "<!-- kaitd:insight:") {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(line, "<!-- kaitd:insight:"), " -->")
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
