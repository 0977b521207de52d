//go:build !windows

package printer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lpstatSample = `printer TM-T88V is idle.  enabled since Mon 01 Jan 2024
	Description: Front desk receipt
	Location: Counter
	Make and Model: EPSON TM-T88V
printer Zebra_ZD420 now printing Zebra_ZD420-42.  enabled since Mon 01 Jan 2024
	Description: Label station
	Make and Model: Zebra ZD420 ZPL
printer Office_HP disabled since Mon 01 Jan 2024 -
	reason unknown
	Make and Model: HP LaserJet Pro M404
`

func TestParseLpstatPrinters(t *testing.T) {
	printers := parseLpstatPrinters(lpstatSample)
	require.Len(t, printers, 3)

	assert.Equal(t, "TM-T88V", printers[0].Name)
	assert.Equal(t, "idle", printers[0].Status)
	assert.Equal(t, "Front desk receipt", printers[0].Comment)
	assert.Equal(t, "Counter", printers[0].Location)
	assert.Equal(t, "EPSON TM-T88V", printers[0].Driver)

	assert.Equal(t, "Zebra_ZD420", printers[1].Name)
	assert.Equal(t, "printing", printers[1].Status)

	assert.Equal(t, "Office_HP", printers[2].Name)
	assert.Equal(t, "disabled", printers[2].Status)
}

func TestApplyDeviceURIsAndDefault(t *testing.T) {
	printers := parseLpstatPrinters(lpstatSample)
	applyDeviceURIs(printers, "device for TM-T88V: usb://EPSON/TM-T88V\ndevice for Zebra_ZD420: socket://10.0.0.8:9100\n")
	applyDefault(printers, "system default destination: TM-T88V\n")

	assert.Equal(t, "usb://EPSON/TM-T88V", printers[0].DeviceURI)
	assert.True(t, printers[0].IsDefault)
	assert.Equal(t, "socket://10.0.0.8:9100", printers[1].DeviceURI)
	assert.False(t, printers[1].IsDefault)
}
