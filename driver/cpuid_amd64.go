//go:build amd64

package driver

import "github.com/sishtiaq/sgx-lkl/encbackend"

// cpuidAsm is implemented in cpuid_amd64.s; it executes the host CPUID
// instruction with the given eax/ecx inputs and returns eax/ebx/ecx/edx.
func cpuidAsm(eaxIn, ecxIn uint32) (eax, ebx, ecx, edx uint32)

// executeCPUID implements spec.md §4.E's CPUID(reg_ptr) action: run the
// host cpuid instruction using the four words at reg_ptr as eax/ecx
// inputs, writing eax/ebx/ecx/edx back into the same struct.
func executeCPUID(regs *encbackend.CPUIDRegs) {
	eax, ebx, ecx, edx := cpuidAsm(regs.EAX, regs.ECX)
	regs.EAX, regs.EBX, regs.ECX, regs.EDX = eax, ebx, ecx, edx
}
