package device

// Generic device classes referenced by the class mapping table.
const (
	GenericAVControlPoint   uint8 = 0x03
	GenericSwitchThermostat uint8 = 0x08
	GenericWindowCovering   uint8 = 0x09
	GenericSwitchBinary     uint8 = 0x10
	GenericSwitchMultilevel uint8 = 0x11
	GenericSwitchRemote     uint8 = 0x12
	GenericSwitchToggle     uint8 = 0x13
	GenericVentilation      uint8 = 0x16
	GenericSensorBinary     uint8 = 0x20
	GenericSensorMultilevel uint8 = 0x21
	GenericMeterPulse       uint8 = 0x30
	GenericMeter            uint8 = 0x31
	GenericEntryControl     uint8 = 0x40
	GenericSensorAlarm      uint8 = 0xA1
)

// wildcard marks a generic-only row in classTable.
const wildcard = -1

type classKey struct {
	generic  uint8
	specific int
}

// classTable maps a generic/specific device class pair to the command class
// that carries the device's primary function. Rows with a wildcard specific
// class are consulted when no exact pair exists.
var classTable = map[classKey]uint8{
	{GenericAVControlPoint, 0x11}:       0x94,
	{GenericAVControlPoint, 0x12}:       0x30,
	{GenericSwitchThermostat, 0x02}:     0x40,
	{GenericSwitchThermostat, 0x03}:     0x46,
	{GenericSwitchThermostat, 0x04}:     0x43,
	{GenericSwitchThermostat, 0x05}:     0x40,
	{GenericSwitchThermostat, 0x06}:     0x40,
	{GenericWindowCovering, 0x01}:       0x50,
	{GenericSwitchBinary, wildcard}:     ClassSwitchBinary,
	{GenericSwitchMultilevel, wildcard}: ClassSwitchMultilevel,
	{GenericSwitchRemote, 0x01}:         ClassSwitchBinary,
	{GenericSwitchRemote, 0x02}:         ClassSwitchMultilevel,
	{GenericSwitchRemote, 0x03}:         0x28,
	{GenericSwitchRemote, 0x04}:         0x29,
	{GenericSwitchToggle, 0x01}:         0x28,
	{GenericSwitchToggle, 0x02}:         0x29,
	{GenericVentilation, 0x01}:          0x39,
	{GenericSensorBinary, wildcard}:     0x30,
	{GenericSensorMultilevel, wildcard}: ClassSensorMultilevel,
	{GenericMeterPulse, wildcard}:       0x35,
	{GenericMeter, 0x01}:                0x32,
	{GenericEntryControl, 0x01}:         0x62,
	{GenericEntryControl, 0x02}:         0x62,
	{GenericEntryControl, 0x03}:         0x62,
	{GenericSensorAlarm, wildcard}:      0x71,
}

// ResolveClass looks up the command class for a generic/specific pair,
// falling back to a generic-only row. ok is false when neither exists.
func ResolveClass(generic, specific uint8) (class uint8, ok bool) {
	if class, ok = classTable[classKey{generic, int(specific)}]; ok {
		return class, true
	}
	class, ok = classTable[classKey{generic, wildcard}]
	return class, ok
}
