package buffer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// ErrPatch is returned when a patch cannot be parsed or applied.
var ErrPatch = errors.New("patch")

// ApplyPatch applies a unified diff for a single file to the buffer. The diff
// may be a git diff or a plain ---/+++ diff. The buffer is left untouched
// when the patch does not apply.
func (b *Buffer) ApplyPatch(patch string) error {
	files, _, err := gitdiff.Parse(strings.NewReader(patch))
	if err != nil {
		return fmt.Errorf("%w: parsing: %v", ErrPatch, err)
	}
	if len(files) != 1 {
		return fmt.Errorf("%w: expected 1 file, got %d", ErrPatch, len(files))
	}
	f := files[0]
	if f.IsBinary {
		return fmt.Errorf("%w: binary patches are not supported", ErrPatch)
	}

	// gitdiff works on newline-terminated content.
	src := b.Text()
	appended := !strings.HasSuffix(src, "\n") && src != ""
	if appended {
		src += "\n"
	}

	var out bytes.Buffer
	if err := gitdiff.Apply(&out, strings.NewReader(src), f); err != nil {
		return fmt.Errorf("%w: applying: %v", ErrPatch, err)
	}

	result := out.String()
	if appended {
		result = strings.TrimSuffix(result, "\n")
	}
	b.SetText(result)
	return nil
}

// PatchStats counts added and deleted lines in a unified diff without
// applying it.
func PatchStats(patch string) (added, deleted int, err error) {
	files, _, err := gitdiff.Parse(strings.NewReader(patch))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: parsing: %v", ErrPatch, err)
	}
	for _, f := range files {
		for _, frag := range f.TextFragments {
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					added++
				case gitdiff.OpDelete:
					deleted++
				}
			}
		}
	}
	return added, deleted, nil
}
