package printer

type Type string

const (
	TypeThermal   Type = "thermal"
	TypeLabel     Type = "label"
	TypeLaser     Type = "laser"
	TypeInkjet    Type = "inkjet"
	TypeDotMatrix Type = "dotmatrix"
	TypeGeneric   Type = "generic"
)

type Transport string

const (
	TransportUSB       Transport = "usb"
	TransportNetwork   Transport = "network"
	TransportBluetooth Transport = "bluetooth"
	TransportSerial    Transport = "serial"
	TransportParallel  Transport = "parallel"
	TransportUnknown   Transport = "unknown"
)

type Capabilities struct {
	Color         bool     `json:"color"`
	Duplex        bool     `json:"duplex"`
	PaperSizes    []string `json:"paperSizes"`
	MaxWidthMM    float64  `json:"maxWidthMm"`
	HasCutter     bool     `json:"hasCutter"`
	HasCashDrawer bool     `json:"hasCashDrawer"`
}

type Metadata struct {
	IsDefault bool   `json:"isDefault"`
	Status    string `json:"status"`
	PortName  string `json:"portName"`
	Location  string `json:"location,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// Descriptor is an immutable snapshot of a local printer. SystemName is the
// stable identity key; a refresh replaces the whole snapshot.
type Descriptor struct {
	SystemName   string       `json:"systemName"`
	DisplayName  string       `json:"displayName"`
	Type         Type         `json:"type"`
	Transport    Transport    `json:"transport"`
	Capabilities Capabilities `json:"capabilities"`
	Metadata     Metadata     `json:"metadata"`
}
