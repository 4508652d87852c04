//go:build linux
// +build linux

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

package platform

import (
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const devMem = "/dev/mem"

// MMIOBusyProbe maps the page holding a 32 bit status register and
// tests one of its bits.
type MMIOBusyProbe struct {
	mutex  sync.Mutex
	mem    []byte
	offset uint64
	bit    uint
}

func NewMMIOBusyProbe(physAddress, offset uint64, bit uint) (BusyProbe, error) {
	if bit > 31 {
		return nil, errors.Errorf("bit %d out of a 32 bit register", bit)
	}

	pageSize := uint64(os.Getpagesize())
	register := physAddress + offset
	if register%4 != 0 {
		return nil, errors.Errorf("register address 0x%x is not 32 bit aligned", register)
	}
	base := register &^ (pageSize - 1)

	fd, err := unix.Open(devMem, unix.O_RDONLY|unix.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", devMem)
	}
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, int64(base), int(pageSize), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "map register page 0x%x", base)
	}
	return &MMIOBusyProbe{mem: mem, offset: register - base, bit: bit}, nil
}

func (m *MMIOBusyProbe) Busy() (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.mem == nil {
		return false, errors.New("busy probe is closed")
	}
	value := atomic.LoadUint32((*uint32)(unsafe.Pointer(&m.mem[m.offset])))
	return value&(1<<m.bit) != 0, nil
}

func (m *MMIOBusyProbe) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	return err
}
