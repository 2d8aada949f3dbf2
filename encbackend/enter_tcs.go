package encbackend

import "fmt"

// enterTCS is the point where the EENTER/ERESUME transition into a
// thread control structure belongs. Per spec.md §2, the enclave runtime
// on the other side of this call is opaque to the launcher. It does not
// execute the transition: it returns a descriptive error for every call.
// Routing Hardware.Enter through it keeps Backend's public contract
// identical between hardware and simulation.
func enterTCS(fd int, heapBase uintptr, slotID int, call CallID, sig *SignalDescriptor) (ExitResult, error) {
	return ExitResult{}, fmt.Errorf("encbackend: hardware EENTER/ERESUME requires an SGX-capable host and driver, got call=%v slot=%d", call, slotID)
}
