package eci

// Command codes and subcommands the core itself issues. Every other
// command namespace (keyboard, battery, and so on) is opaque payload as far
// as this package is concerned; callers pass their own cmd/subcmd values to
// Submit.
const (
	cmdControl byte = 0x04
	cmdSleep   byte = 0x05

	subcmdControlGetFirmwareVersion byte = 0x10
	subcmdControlNoOperation        byte = 0x00

	subcmdSleepGlobalConfigEventReport byte = 0x01
	subcmdSleepAPSuspend               byte = 0x02
	subcmdSleepAPPowerDown             byte = 0x03
)

const (
	eventReportEnable  byte = 0x01
	eventReportDisable byte = 0x00
)
