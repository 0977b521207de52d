package printer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyType(t *testing.T) {
	assert.Equal(t, TypeThermal, ClassifyType("TM-T88V", "EPSON TM-T88V Receipt", "EPSON TM-T88V"))
	assert.Equal(t, TypeThermal, ClassifyType("Star_TSP143", "Star TSP143", ""))
	assert.Equal(t, TypeLabel, ClassifyType("Zebra_ZD420", "Zebra ZD420", "ZPL II"))
	assert.Equal(t, TypeLabel, ClassifyType("QL-820NWB", "Brother QL-820NWB", ""))
	assert.Equal(t, TypeLaser, ClassifyType("HP_LaserJet_Pro", "HP LaserJet Pro M404", "HP LaserJet"))
	assert.Equal(t, TypeDotMatrix, ClassifyType("LX-350", "Epson LX-350", ""))
	assert.Equal(t, TypeInkjet, ClassifyType("DeskJet_2700", "HP DeskJet 2700", ""))
	assert.Equal(t, TypeGeneric, ClassifyType("Generic_Printer", "Some Printer", "driverless"))
}

func TestClassifyTypeFirstMatchWins(t *testing.T) {
	// "thermal" outranks "label" even when both keywords appear.
	assert.Equal(t, TypeThermal, ClassifyType("thermal label printer", "", ""))
}

func TestDetectTransport(t *testing.T) {
	assert.Equal(t, TransportUSB, DetectTransport("USB001", "", "X"))
	assert.Equal(t, TransportNetwork, DetectTransport("WSD-abc123", "", "X"))
	assert.Equal(t, TransportSerial, DetectTransport("COM3", "", "X"))
	assert.Equal(t, TransportParallel, DetectTransport("LPT1", "", "X"))
	assert.Equal(t, TransportBluetooth, DetectTransport("BTH002", "", "X"))

	assert.Equal(t, TransportUSB, DetectTransport("", "usb://EPSON/TM-T88V", "X"))
	assert.Equal(t, TransportNetwork, DetectTransport("", "socket://10.0.0.5:9100", "X"))
	assert.Equal(t, TransportNetwork, DetectTransport("", "ipp://printer.local/ipp", "X"))
	assert.Equal(t, TransportSerial, DetectTransport("", "serial:/dev/ttyS0?baud=9600", "X"))

	// MAC tail on the name implies a network device.
	assert.Equal(t, TransportNetwork, DetectTransport("", "", "HP OfficeJet [A1B2C3]"))
	assert.Equal(t, TransportNetwork, DetectTransport("", "", "Canon 00:1B:44:11:3A:B7"))

	assert.Equal(t, TransportNetwork, DetectTransport("", "", "Kitchen WiFi Printer"))
	assert.Equal(t, TransportNetwork, DetectTransport("", "", "AirPrint Upstairs"))
	assert.Equal(t, TransportUnknown, DetectTransport("", "", "Mystery"))
}

func TestCapabilitiesForThermal(t *testing.T) {
	caps := CapabilitiesFor(TypeThermal, "TM-T88V", "", "")
	assert.False(t, caps.Color)
	assert.False(t, caps.Duplex)
	assert.Equal(t, []string{"80mm", "58mm"}, caps.PaperSizes)
	assert.Equal(t, 80.0, caps.MaxWidthMM)
	assert.True(t, caps.HasCutter)
	assert.True(t, caps.HasCashDrawer)

	narrow := CapabilitiesFor(TypeThermal, "POS-58", "", "")
	assert.Equal(t, 58.0, narrow.MaxWidthMM)
}

func TestCapabilitiesForLabel(t *testing.T) {
	caps := CapabilitiesFor(TypeLabel, "QL-820NWB", "", "")
	assert.False(t, caps.Color)
	assert.False(t, caps.Duplex)
	assert.Equal(t, []string{"Label", "Continuous"}, caps.PaperSizes)
	assert.Equal(t, 62.0, caps.MaxWidthMM)

	zebra := CapabilitiesFor(TypeLabel, "Zebra_ZD420", "", "")
	assert.Equal(t, 104.0, zebra.MaxWidthMM)
}

func TestCapabilitiesForOffice(t *testing.T) {
	laser := CapabilitiesFor(TypeLaser, "HP_LaserJet", "", "")
	assert.True(t, laser.Duplex)
	assert.Equal(t, []string{"A4", "Letter"}, laser.PaperSizes)

	inkjet := CapabilitiesFor(TypeInkjet, "DeskJet", "", "")
	assert.True(t, inkjet.Color)

	dot := CapabilitiesFor(TypeDotMatrix, "LX-350", "", "")
	assert.False(t, dot.Color)
	assert.False(t, dot.Duplex)
}

func TestFromRaw(t *testing.T) {
	desc := fromRaw(rawPrinter{
		Name:      "TM-T88V",
		Driver:    "EPSON TM-T88V",
		DeviceURI: "usb://EPSON/TM-T88V",
		Status:    "idle",
		IsDefault: true,
	})
	assert.Equal(t, "TM-T88V", desc.SystemName)
	assert.Equal(t, TypeThermal, desc.Type)
	assert.Equal(t, TransportUSB, desc.Transport)
	assert.True(t, desc.Metadata.IsDefault)
	assert.Equal(t, "idle", desc.Metadata.Status)
	assert.Equal(t, "usb://EPSON/TM-T88V", desc.Metadata.PortName)
}
