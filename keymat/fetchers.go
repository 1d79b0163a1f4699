// This file is part of ppn-node, a peer-to-peer node runtime in Golang.
// Copyright (C) 2019-2022 Bernd Fix  >Y<
//
// ppn-node is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// ppn-node is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package keymat

import (
	"bufio"
	"crypto/rand"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"ppn/config"

	"golang.org/x/sys/unix"
)

// fetchMemInfo hashes the "Total" lines of /proc/meminfo (the volatile
// "available"/"free" figures are excluded implicitly since only lines
// whose label contains "Total" are read).
func fetchMemInfo(_ *config.Tree, acc *Accumulator) error {
	return scanLines("/proc/meminfo", acc, func(line string) bool {
		return strings.Contains(line, "Total")
	})
}

// fetchCPUInfo hashes every line of /proc/cpuinfo except "cpu MHz" lines,
// which drift between runs on the same machine.
func fetchCPUInfo(_ *config.Tree, acc *Accumulator) error {
	return scanLines("/proc/cpuinfo", acc, func(line string) bool {
		return !strings.Contains(line, "cpu MHz")
	})
}

// fetchDiskInfo hashes the sorted set of filenames under the stable disk
// identity directories.
func fetchDiskInfo(_ *config.Tree, acc *Accumulator) error {
	var names []string
	for _, dir := range []string{"/dev/disk/by-id", "/dev/disk/by-uuid"} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		acc.Add([]byte(n))
	}
	return nil
}

// fetchNetMacAddress hashes the MAC address of every network interface
// that has a backing device, in sorted interface-name order.
func fetchNetMacAddress(_ *config.Tree, acc *Accumulator) error {
	const base = "/sys/class/net"
	entries, err := os.ReadDir(base)
	if err != nil {
		return &KeyMaterialError{Kind: "netMacAddress", Err: err}
	}
	var names []string
	for _, e := range entries {
		if _, err := os.Stat(filepath.Join(base, e.Name(), "device")); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		acc.Add([]byte(n))
		data, err := os.ReadFile(filepath.Join(base, n, "address"))
		if err == nil {
			acc.Add([]byte(strings.TrimSpace(string(data))))
		}
	}
	return nil
}

// fetchOSInfo hashes uname(2) fields plus the kernel command line.
func fetchOSInfo(_ *config.Tree, acc *Accumulator) error {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return &KeyMaterialError{Kind: "osInfo", Err: err}
	}
	add := func(label string, field [65]byte) {
		acc.Add([]byte(label))
		acc.Add(trimNul(field[:]))
	}
	add("sysname", uts.Sysname)
	add("nodename", uts.Nodename)
	add("release", uts.Release)
	add("version", uts.Version)
	add("machine", uts.Machine)

	acc.Add([]byte("kernel cmdline"))
	return scanLines("/proc/cmdline", acc, func(string) bool { return true })
}

// fetchAppPath hashes the resolved path of the running executable.
func fetchAppPath(_ *config.Tree, acc *Accumulator) error {
	path, err := os.Readlink("/proc/self/exe")
	if err != nil {
		return &KeyMaterialError{Kind: "appPath", Err: err}
	}
	acc.Add([]byte(path))
	return nil
}

// fetchAppPid hashes the current process id. Not part of the default
// "auto" kind list, but addressable explicitly like "random"/"constant".
func fetchAppPid(_ *config.Tree, acc *Accumulator) error {
	acc.AddInt(int64(os.Getpid()))
	return nil
}

// fetchDomainname hashes getdomainname(2).
func fetchDomainname(_ *config.Tree, acc *Accumulator) error {
	name, err := getDomainname()
	if err != nil {
		return &KeyMaterialError{Kind: "domainname", Err: err}
	}
	acc.Add([]byte(name))
	return nil
}

// fetchHostname hashes gethostname(2).
func fetchHostname(_ *config.Tree, acc *Accumulator) error {
	name, err := os.Hostname()
	if err != nil {
		return &KeyMaterialError{Kind: "hostname", Err: err}
	}
	acc.Add([]byte(name))
	return nil
}

// fetchUsername hashes the first of $USER, getlogin(2), or the password
// database entry for the effective uid.
func fetchUsername(_ *config.Tree, acc *Accumulator) error {
	if name := os.Getenv("USER"); name != "" {
		acc.Add([]byte(name))
		return nil
	}
	if name, err := unixGetlogin(); err == nil && name != "" {
		acc.Add([]byte(name))
		return nil
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		acc.Add([]byte(u.Username))
		return nil
	}
	return &KeyMaterialError{Kind: "username", Err: syscall.ENOENT}
}

// fetchRandom hashes 256 bytes from a cryptographic RNG.
func fetchRandom(_ *config.Tree, acc *Accumulator) error {
	buf := make([]byte, 256)
	if _, err := rand.Read(buf); err != nil {
		return &KeyMaterialError{Kind: "random", Err: err}
	}
	acc.Add(buf)
	return nil
}

// fetchConstant hashes the literal subtree value.
func fetchConstant(conf *config.Tree, acc *Accumulator) error {
	acc.Add([]byte(conf.Value))
	return nil
}

// scanLines reads path line by line, hashing every line that keep accepts.
func scanLines(path string, acc *Accumulator, keep func(string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return &KeyMaterialError{Kind: path, Err: err}
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		if keep(line) {
			acc.Add([]byte(line))
		}
	}
	return s.Err()
}

func trimNul(b []byte) []byte {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return b[:i]
	}
	return b
}

// getDomainname returns the NIS/YP domain name reported by uname(2); Linux
// carries it as an extra Utsname field alongside the POSIX ones.
func getDomainname() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return string(trimNul(uts.Domainname[:])), nil
}

// unixGetlogin approximates getlogin(2): the controlling-terminal login
// name, for which $LOGNAME is the standard userspace fallback.
func unixGetlogin() (string, error) {
	if name := os.Getenv("LOGNAME"); name != "" {
		return name, nil
	}
	return "", syscall.ENOENT
}
