package restore

import (
	"fmt"

	"github.com/google/uuid"
	"howett.net/plist"

	"github.com/stepherg/gestaltmgr"
	"github.com/stepherg/gestaltmgr/tweak"
)

// BuildApply converts a merge result into an ordered transaction.
//
// Order is fixed: the flag document first (always present, even when empty,
// because the destination expects a complete replacement file), then the
// gestalt document when one exists, then file-set payloads in producer
// order. Identical inputs yield byte-identical output.
func BuildApply(res tweak.Result, opts gestaltmgr.Options) (*Transaction, error) {
	flags := res.Flags
	if flags == nil {
		flags = map[string]interface{}{}
	}
	flagBytes, err := plist.Marshal(flags, plist.BinaryFormat)
	if err != nil {
		return nil, fmt.Errorf("serialize flag document: %w", err)
	}

	files := []FileToRestore{{
		Contents: flagBytes,
		Path:     opts.FlagPath,
		Name:     opts.FlagName,
	}}

	if res.Gestalt != nil {
		gestaltBytes, err := plist.Marshal(res.Gestalt, plist.BinaryFormat)
		if err != nil {
			return nil, fmt.Errorf("serialize gestalt document: %w", err)
		}
		files = append(files, FileToRestore{
			Contents: gestaltBytes,
			Path:     opts.GestaltPath,
			Name:     opts.GestaltName,
		})
	}

	for _, f := range res.Files {
		files = append(files, FileToRestore{Contents: f.Contents, Path: f.Path, Name: f.Name})
	}

	if err := checkDestinations(files); err != nil {
		return nil, err
	}
	return &Transaction{ID: uuid.NewString(), Files: files, Reboot: true}, nil
}

// BuildReset builds the reset transaction: a single empty payload at the
// gestalt destination. The merge engine and the flag document are not
// involved; restoring an empty cache removes all customization.
func BuildReset(opts gestaltmgr.Options) *Transaction {
	return &Transaction{
		ID: uuid.NewString(),
		Files: []FileToRestore{{
			Contents: []byte{},
			Path:     opts.GestaltPath,
			Name:     opts.GestaltName,
		}},
		Reboot: true,
	}
}

func checkDestinations(files []FileToRestore) error {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		dest := f.Path + f.Name
		if _, dup := seen[dest]; dup {
			return fmt.Errorf("%w: %s", gestaltmgr.ErrDuplicateDestination, dest)
		}
		seen[dest] = struct{}{}
	}
	return nil
}
