// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package lifecycle

import (
	"errors"

	"github.com/networkeyes/lifecycle/internal/store"
)

// step names one side-effecting stage of an operation.
type step string

// Install steps.
const (
	stepValidateUser     step = "validate_user"
	stepCheck            step = "check"
	stepCreateDir        step = "create_directory"
	stepCopy             step = "copy_files"
	stepInsert           step = "insert_records"
	stepValidateManifest step = "validate_manifest"
	stepCommit           step = "commit"
)

// Delete steps. Directory removal never fails and has no entry.
const (
	stepDeleteRows   step = "delete_records"
	stepDeleteCommit step = "delete_commit"
)

// Update steps. The directory held an installed plugin before the update
// started, so none of them remove it.
const (
	stepUpdateCopy     step = "update_copy_files"
	stepTouch          step = "touch_records"
	stepUpdateValidate step = "update_validate_manifest"
	stepUpdateCommit   step = "update_commit"
)

// compensation is the cleanup owed after a step fails.
type compensation struct {
	rollback  bool
	removeDir bool
}

// compensationFor returns the cleanup for a failure of st with err. The
// session is always rolled back, even where nothing was written.
func compensationFor(st step, err error) compensation {
	switch st {
	case stepCopy, stepValidateManifest, stepCommit:
		return compensation{rollback: true, removeDir: true}
	case stepInsert:
		// A conflicting insert lost a race with a concurrent install whose
		// directory shares this path.
		if errors.Is(err, store.ErrConflict) {
			return compensation{rollback: true}
		}
		return compensation{rollback: true, removeDir: true}
	default:
		return compensation{rollback: true}
	}
}
