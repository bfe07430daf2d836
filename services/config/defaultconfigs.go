package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgECIDemo = `{
  "eci": {
      "address": 69,
      "clock_hz": 80000,
      "delay_count": 2,
      "timeout_ms": 20,
      "max_retries": 10
  }
}`

var embeddedConfigs = map[string][]byte{
	"eci-demo": []byte(cfgECIDemo),
}
