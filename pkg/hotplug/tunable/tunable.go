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

// Package tunable holds the named scalar controls of the governor. Each
// control is read and written as text, in the manner of a pflag.Value.
package tunable

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrReadOnly     = errors.New("tunable is read-only")
	ErrNotFound     = errors.New("tunable not found")
)

// Tunable is one named control; a nil setter makes it read-only.
type Tunable struct {
	Name        string
	Description string

	get func() string
	set func(value string) error
}

// Info is the listing form of a tunable.
type Info struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Writable    bool   `json:"writable"`
	Description string `json:"description,omitempty"`
}

func (t *Tunable) Writable() bool {
	return t.set != nil
}

// Registry stores tunables by name. Setters do their own locking; the
// registry lock only guards the name table.
type Registry struct {
	mu       sync.RWMutex
	tunables map[string]*Tunable
}

func NewRegistry() *Registry {
	return &Registry{
		tunables: make(map[string]*Tunable),
	}
}

func (r *Registry) Register(tunables ...*Tunable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tunables {
		if t == nil || t.Name == "" || t.get == nil {
			return errors.New("tunable must have a name and a getter")
		}
		if _, ok := r.tunables[t.Name]; ok {
			return errors.Errorf("tunable %s registered twice", t.Name)
		}
		r.tunables[t.Name] = t
	}
	return nil
}

func (r *Registry) lookup(name string) (*Tunable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tunables[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return t, nil
}

// Get returns the current value of the named tunable.
func (r *Registry) Get(name string) (string, error) {
	t, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	return t.get(), nil
}

// Set writes the named tunable. A rejected value leaves the prior value in
// place and the error wraps ErrInvalidInput.
func (r *Registry) Set(name, value string) error {
	t, err := r.lookup(name)
	if err != nil {
		return err
	}
	if !t.Writable() {
		return errors.Wrap(ErrReadOnly, name)
	}
	if err := t.set(value); err != nil {
		return errors.Wrapf(err, "set %s=%q", name, value)
	}
	return nil
}

// List returns every tunable sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	tunables := make([]*Tunable, 0, len(r.tunables))
	for _, t := range r.tunables {
		tunables = append(tunables, t)
	}
	r.mu.RUnlock()

	sort.Slice(tunables, func(i, j int) bool { return tunables[i].Name < tunables[j].Name })

	infos := make([]Info, 0, len(tunables))
	for _, t := range tunables {
		infos = append(infos, Info{
			Name:        t.Name,
			Value:       t.get(),
			Writable:    t.Writable(),
			Description: t.Description,
		})
	}
	return infos
}

// NewReadOnly returns a tunable that rejects every write.
func NewReadOnly(name, description string, get func() string) *Tunable {
	return &Tunable{Name: name, Description: description, get: get}
}

// NewInt returns an integer tunable; set receives the parsed value and is
// expected to clamp it.
func NewInt(name, description string, get func() int, set func(int) error) *Tunable {
	return &Tunable{
		Name:        name,
		Description: description,
		get:         func() string { return strconv.Itoa(get()) },
		set: func(value string) error {
			v, err := ParseInt(value)
			if err != nil {
				return err
			}
			return set(v)
		},
	}
}

// NewBool returns a switch tunable shown as "on"/"off".
func NewBool(name, description string, get func() bool, set func(bool) error) *Tunable {
	return &Tunable{
		Name:        name,
		Description: description,
		get:         func() string { return FormatBool(get()) },
		set: func(value string) error {
			v, err := ParseBool(value)
			if err != nil {
				return err
			}
			return set(v)
		},
	}
}

// NewMilliseconds returns a duration tunable read and written in milliseconds.
func NewMilliseconds(name, description string, get func() time.Duration, set func(time.Duration) error) *Tunable {
	return &Tunable{
		Name:        name,
		Description: description,
		get:         func() string { return strconv.FormatInt(get().Milliseconds(), 10) },
		set: func(value string) error {
			v, err := ParseInt(value)
			if err != nil {
				return err
			}
			return set(time.Duration(v) * time.Millisecond)
		},
	}
}

// singleArg returns the only whitespace separated field of value.
func singleArg(value string) (string, error) {
	fields := strings.Fields(value)
	if len(fields) != 1 {
		return "", errors.Wrapf(ErrInvalidInput, "expected one argument, got %d", len(fields))
	}
	return fields[0], nil
}

func ParseInt(value string) (int, error) {
	arg, err := singleArg(value)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidInput, "%q is not an integer", arg)
	}
	return v, nil
}

// ParseBool accepts "on"/"off" and the forms of strconv.ParseBool.
func ParseBool(value string) (bool, error) {
	arg, err := singleArg(value)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(arg) {
	case consts.ControlKnobON:
		return true, nil
	case consts.ControlKnobOFF:
		return false, nil
	}
	v, err := strconv.ParseBool(arg)
	if err != nil {
		return false, errors.Wrapf(ErrInvalidInput, "%q is not a switch value", arg)
	}
	return v, nil
}

func FormatBool(v bool) string {
	if v {
		return consts.ControlKnobON
	}
	return consts.ControlKnobOFF
}
