// Package discovery feeds collector lists into the generator from an
// external source. The file source watches a YAML collectors file and
// pushes every change; the generator observes it as a CollectorChange.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package discovery

import (
	"os"
	"path/filepath"

	"github.com/NVIDIA/sandesh/nlog"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// CollectorsFile is the watched document: primary first, optional
// secondary next; further entries are ignored.
type CollectorsFile struct {
	Collectors []string `yaml:"collectors"`
}

// Watcher pushes collector-list changes until stopped.
type Watcher struct {
	path    string
	apply   func(collectors []string)
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	last    []string
}

// Watch loads path immediately and then applies every subsequent change.
// The parent directory is watched so editors that replace the file
// (rename-over) are seen too.
func Watch(path string, apply func(collectors []string)) (*Watcher, error) {
	w := &Watcher{path: path, apply: apply, stopCh: make(chan struct{})}
	if err := w.reload(); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "discovery: watcher")
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrapf(err, "discovery: watch %s", filepath.Dir(path))
	}
	w.fsw = fsw
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				nlog.Errorf("discovery: %v", err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			nlog.Errorf("discovery: watch: %v", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() error {
	b, err := os.ReadFile(w.path)
	if err != nil {
		return errors.Wrap(err, "discovery: read")
	}
	var doc CollectorsFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return errors.Wrap(err, "discovery: parse")
	}
	if equal(w.last, doc.Collectors) {
		return nil
	}
	w.last = doc.Collectors
	nlog.Infof("discovery: collector list %v", doc.Collectors)
	w.apply(doc.Collectors)
	return nil
}

// Stop ends the watch; idempotent per watcher lifetime.
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
		return
	default:
	}
	close(w.stopCh)
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
