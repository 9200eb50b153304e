package log

// FieldComponent carries the emitting subsystem on every record.
const FieldComponent = "component"

// Component names for Config.Component.
const (
	ComponentApp    = "app"
	ComponentNotify = "notify"
)
