// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package plugin

import (
	"fmt"
	"strings"
	"unicode"
)

// maxUserIDLength bounds user ids; they become directory names.
const maxUserIDLength = 128

// PluginID derives the plugin record id for a user. Ids are never generated
// by the database so callers can predict them.
func PluginID(userID, slug string) string {
	return userID + "_" + slug
}

// ModuleID derives the module record id for a user.
func ModuleID(userID, slug, module string) string {
	return PluginID(userID, slug) + "_" + module
}

// ValidateUserID rejects ids that cannot safely be used as a single path
// component under the plugins directory.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if len(userID) > maxUserIDLength {
		return fmt.Errorf("user id must be %d characters or less, got %d", maxUserIDLength, len(userID))
	}
	if userID == "." || strings.Contains(userID, "..") {
		return fmt.Errorf("user id %q must not contain '..'", userID)
	}
	for _, r := range userID {
		if r == '/' || r == '\\' || r == 0 || unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("user id %q contains an invalid character %q", userID, r)
		}
	}
	return nil
}
