//go:build !amd64

package driver

import "github.com/sishtiaq/sgx-lkl/encbackend"

// executeCPUID has no portable implementation outside amd64; the
// library-OS image this launcher targets is x86-64 only, so this path
// only exists to keep the package buildable on a development host of a
// different architecture.
func executeCPUID(regs *encbackend.CPUIDRegs) {}
