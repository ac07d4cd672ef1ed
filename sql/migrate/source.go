// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package migrate provides the migration session: script discovery over
// resource bundles, the executed-scripts journal, runtime parameter
// substitution and the phase orchestrator.
package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// A ScriptKind classifies a discovered script by its role in the
// migration flow.
type ScriptKind int

const (
	// KindMigrate is a one-shot migration script under Migrations/,
	// ordered by filename and journalled.
	KindMigrate ScriptKind = iota
	// KindPreDeploy runs before the migration group on every session.
	KindPreDeploy
	// KindPostDeploy runs after the migration group on every session,
	// closing the Migrate phase.
	KindPostDeploy
	// KindPostDatabaseCreate runs once per database lifetime, directly
	// after the migration group.
	KindPostDatabaseCreate
	// KindSchema is an idempotent object script under Schema/<schema>/.
	KindSchema
	// KindData is a YAML/JSON data file under Data/.
	KindData
)

// String returns the kind name used in log output.
func (k ScriptKind) String() string {
	switch k {
	case KindMigrate:
		return "migrate"
	case KindPreDeploy:
		return "pre-deploy"
	case KindPostDeploy:
		return "post-deploy"
	case KindPostDatabaseCreate:
		return "post-database-create"
	case KindSchema:
		return "schema"
	case KindData:
		return "data"
	}
	return fmt.Sprintf("ScriptKind(%d)", int(k))
}

// A Script is a single discovered resource. Name is the canonical name
// recorded in the journal; Path is the location within its bundle.
type Script struct {
	Name   string
	Path   string
	Kind   ScriptKind
	Schema string // Schema scripts only: the <schema> path segment

	bundle fs.FS
}

// ReadAll returns the script body.
func (s *Script) ReadAll() ([]byte, error) {
	b, err := fs.ReadFile(s.bundle, s.Path)
	if err != nil {
		return nil, fmt.Errorf("migrate: read script %q: %w", s.Name, err)
	}
	return b, nil
}

// A Source enumerates scripts over an ordered probing list of resource
// bundles. When two bundles carry the same canonical name, the earlier
// bundle wins.
type Source struct {
	scripts map[ScriptKind][]*Script
}

// NewSource scans the given bundles in probing order and classifies
// every *.sql, *.yaml, *.yml and *.json file found:
//
//	*.pre.deploy.sql             pre-deploy group
//	*.post.deploy.sql            post-deploy group
//	*.post.database.create.sql   once after database creation
//	Migrations/**                one-shot migrations, ordered by name
//	Schema/<schema>/**           idempotent schema objects
//	Data/**                      data files
func NewSource(bundles ...fs.FS) (*Source, error) {
	src := &Source{scripts: make(map[ScriptKind][]*Script)}
	seen := make(map[string]bool)
	for _, b := range bundles {
		err := fs.WalkDir(b, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			s, ok := classify(p)
			if !ok || seen[dedupKey(s)] {
				return nil
			}
			seen[dedupKey(s)] = true
			s.bundle = b
			src.scripts[s.Kind] = append(src.scripts[s.Kind], s)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("migrate: scan bundle: %w", err)
		}
	}
	for _, ss := range src.scripts {
		sort.Slice(ss, func(i, j int) bool {
			if ss[i].Name != ss[j].Name {
				return ss[i].Name < ss[j].Name
			}
			return ss[i].Path < ss[j].Path
		})
	}
	return src, nil
}

// Scripts returns the scripts of the given kind, ordered by name.
func (s *Source) Scripts(kind ScriptKind) []*Script {
	return s.scripts[kind]
}

// dedupKey is the first-bundle-wins namespace of a script. Journalled
// kinds share the journal's flat name space, so the canonical name is
// the key; schema and data files are never journalled and may repeat a
// filename across folders, so their key is the bundle-relative path.
func dedupKey(s *Script) string {
	switch s.Kind {
	case KindSchema, KindData:
		return s.Kind.String() + "\x00" + s.Path
	}
	return s.Name
}

func classify(p string) (*Script, bool) {
	name := path.Base(p)
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pre.deploy.sql"):
		return &Script{Name: name, Path: p, Kind: KindPreDeploy}, true
	case strings.HasSuffix(lower, ".post.deploy.sql"):
		return &Script{Name: name, Path: p, Kind: KindPostDeploy}, true
	case strings.HasSuffix(lower, ".post.database.create.sql"):
		return &Script{Name: name, Path: p, Kind: KindPostDatabaseCreate}, true
	}
	segs := strings.Split(p, "/")
	for i, seg := range segs[:len(segs)-1] {
		switch {
		case strings.EqualFold(seg, "migrations") && strings.HasSuffix(lower, ".sql"):
			return &Script{Name: name, Path: p, Kind: KindMigrate}, true
		case strings.EqualFold(seg, "schema") && i+1 < len(segs)-1 && strings.HasSuffix(lower, ".sql"):
			return &Script{Name: name, Path: p, Kind: KindSchema, Schema: segs[i+1]}, true
		case strings.EqualFold(seg, "data") && isDataFile(lower):
			return &Script{Name: name, Path: p, Kind: KindData}, true
		}
	}
	return nil, false
}

func isDataFile(name string) bool {
	for _, ext := range []string{".yaml", ".yml", ".json", ".sql"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
