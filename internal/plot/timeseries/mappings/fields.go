package mappings

// FieldMapping labels one sampled field. Min and Max are a float64 bound or
// "auto" to follow the data.
type FieldMapping struct {
	Label      string
	ShortLabel string
	Min        interface{}
	Max        interface{}
}

var FieldMappings = map[string]FieldMapping{
	"tick": {
		Label:      "Tick",
		ShortLabel: "Tick",
		Min:        0.0,
		Max:        "auto",
	},
	"load": {
		Label:      "Runqueue Load (tasks)",
		ShortLabel: "Load",
		Min:        0.0,
		Max:        "auto",
	},
	"queued": {
		Label:      "Queued Tasks",
		ShortLabel: "Queued",
		Min:        0.0,
		Max:        "auto",
	},
	"pending": {
		Label:      "Pending IPI Requests",
		ShortLabel: "Pending IPIs",
		Min:        0.0,
		Max:        "auto",
	},
	"busy": {
		Label:      "Core Busy",
		ShortLabel: "Busy",
		Min:        0.0,
		Max:        1.0,
	},
}

func GetFieldMapping(field string) (FieldMapping, bool) {
	m, ok := FieldMappings[field]
	return m, ok
}
