/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package general

import (
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const (
	FlockCoolingInterval = 6 * time.Second
	FlockTryLockMaxTimes = 10
)

type FileWatcherInfo struct {
	// if Filename is empty, all file events in Path are reported,
	// otherwise only events of this specific file are reported
	Filename string
	Path     []string
	Op       fsnotify.Op
}

// RegisterFileEventWatcher watches the given paths and reports matching events
// through the returned channel; bursts of events are coalesced into one.
func RegisterFileEventWatcher(stop <-chan struct{}, fileWatcherInfo FileWatcherInfo) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "new fsnotify watcher failed")
	}

	for _, watchPath := range fileWatcherInfo.Path {
		if err := watcher.Add(watchPath); err != nil {
			_ = watcher.Close()
			return nil, errors.Wrapf(err, "failed to add event path %s", watchPath)
		}
	}

	watcherCh := make(chan struct{}, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Errorf("file event watcher panic: %v", r)
			}
		}()

		defer func() {
			if err := watcher.Close(); err != nil {
				Errorf("failed to close watcher: %v", err)
			}
		}()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				filename := filepath.Base(event.Name)
				if (fileWatcherInfo.Filename == "" || filename == fileWatcherInfo.Filename) &&
					(event.Op&fileWatcherInfo.Op) > 0 {
					InfofV(4, "fsnotify watcher notify %s", event)
					select {
					case watcherCh <- struct{}{}:
					default:
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				Warningf("%v watcher error: %v", fileWatcherInfo, err)
			case <-stop:
				Infof("shutting down event watcher %v", fileWatcherInfo)
				return
			}
		}
	}()

	return watcherCh, nil
}

// GetOneExistPath returns the first existing path, or empty if none exists.
func GetOneExistPath(paths []string) string {
	for _, path := range paths {
		if IsPathExists(path) {
			return path
		}
	}
	return ""
}

// IsPathExists is to check this path whether exists
func IsPathExists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}

// Flock is an exclusive advisory lock bound to a file.
type Flock struct {
	LockFile string
	lock     *os.File
}

func createFlock(file string) (*Flock, error) {
	if file == "" {
		return nil, errors.New("cannot create flock on empty path")
	}
	lock, err := os.Create(file)
	if err != nil {
		return nil, err
	}
	return &Flock{LockFile: file, lock: lock}, nil
}

func (f *Flock) tryLock() error {
	if f == nil || f.lock == nil {
		return errors.New("cannot use lock on a nil flock")
	}
	return syscall.Flock(int(f.lock.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (f *Flock) release() {
	if f != nil && f.lock != nil {
		_ = syscall.Flock(int(f.lock.Fd()), syscall.LOCK_UN)
		_ = f.lock.Close()
	}
}

// GetUniqueLockWithTimeout tries to acquire the file lock for the given times,
// sleeping duration between attempts.
func GetUniqueLockWithTimeout(filename string, duration time.Duration, tries int) (*Flock, error) {
	lockDirPath := filepath.Dir(filename)
	if err := os.MkdirAll(lockDirPath, 0o755); err != nil {
		return nil, errors.Wrapf(err, "ensure lock directory %s", lockDirPath)
	}

	lock, err := createFlock(filename)
	if err != nil {
		return nil, errors.Wrap(err, "create lock")
	}

	for tryCount := 0; tryCount < tries; tryCount++ {
		if err = lock.tryLock(); err == nil {
			Infof("get lock %s successfully", filename)
			return lock, nil
		}
		Infof("try to get unique lock %s, count: %d", filename, tryCount+1)
		time.Sleep(duration)
	}

	_ = lock.lock.Close()
	return nil, errors.Wrapf(err, "lock %s is held by another process", filename)
}

// GetUniqueLock is a wrapper function for GetUniqueLockWithTimeout with default configurations
func GetUniqueLock(filename string) (*Flock, error) {
	return GetUniqueLockWithTimeout(filename, FlockCoolingInterval, FlockTryLockMaxTimes)
}

// ReleaseUniqueLock release the given file lock
func ReleaseUniqueLock(lock *Flock) {
	if lock == nil {
		return
	}
	lock.release()
	Infof("release lock %s successfully", lock.LockFile)
}
