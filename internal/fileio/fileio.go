// Package fileio writes configuration artifacts to disk idempotently.
// Callers that gate follow-up work on "did anything change" rely on the
// short-circuit: byte-identical content performs no filesystem mutation.
package fileio

import (
	"bytes"
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// ManagedHeader is the banner prepended to every generated file so it is
// recognizably machine-managed.
const ManagedHeader = "# This file is Juju managed - do not edit by hand #\n\n"

type options struct {
	perms os.FileMode
	group string
}

// Option adjusts how Write materializes a file.
type Option func(*options)

// WithPerms sets the permission bits applied on change. Default 0644.
func WithPerms(perms os.FileMode) Option {
	return func(o *options) { o.perms = perms }
}

// WithGroup sets the owning group applied on change. Defaults to the
// current user's primary group.
func WithGroup(group string) Option {
	return func(o *options) { o.group = group }
}

// Write writes content to path, sets permissions and ownership, and reports
// whether anything changed. If the file already holds exactly content, no
// write, chmod or chown happens and Write returns false.
func Write(content, path string, opts ...Option) (bool, error) {
	o := options{perms: 0o644}
	for _, opt := range opts {
		opt(&o)
	}

	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, []byte(content)) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	if err := os.WriteFile(path, []byte(content), o.perms); err != nil {
		return false, err
	}
	// WriteFile permissions only apply on creation.
	if err := os.Chmod(path, o.perms); err != nil {
		return false, err
	}
	uid, gid, err := ownership(o.group)
	if err != nil {
		return false, err
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return false, err
	}
	return true, nil
}

// ownership resolves the current process owner and the requested group,
// falling back to the owner's primary group.
func ownership(group string) (int, int, error) {
	current, err := user.Current()
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.Atoi(current.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse uid %q: %w", current.Uid, err)
	}
	gidStr := current.Gid
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return 0, 0, err
		}
		gidStr = g.Gid
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return 0, 0, fmt.Errorf("parse gid %q: %w", gidStr, err)
	}
	return uid, gid, nil
}
