package forest

// Device identifies an execution target known to the service.
type Device string

const (
	// DeviceAgave is the 8-qubit Agave chip.
	DeviceAgave Device = "8Q-Agave"
	// DeviceAcorn is the 19-qubit Acorn chip.
	DeviceAcorn Device = "19Q-Acorn"
	// DeviceQVM is the hosted virtual machine, used when hardware
	// execution is not requested.
	DeviceQVM Device = "QVM"
)

// Devices lists every known execution target.
func Devices() []Device {
	return []Device{DeviceAgave, DeviceAcorn, DeviceQVM}
}

// Known reports whether d names a device in the catalog.
func (d Device) Known() bool {
	switch d {
	case DeviceAgave, DeviceAcorn, DeviceQVM:
		return true
	}
	return false
}

// IsSimulator reports whether d is the virtual machine.
func (d Device) IsSimulator() bool {
	return d == DeviceQVM
}

// Qubits returns the qubit capacity of the device. The virtual machine
// reports 0, meaning unbounded for capacity checks.
func (d Device) Qubits() int {
	switch d {
	case DeviceAgave:
		return 8
	case DeviceAcorn:
		return 19
	}
	return 0
}
