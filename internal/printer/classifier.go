package printer

import (
	"regexp"
	"strings"
)

// Classification is keyword-driven: the first rule whose keyword list hits
// the combined name/display/driver haystack wins.
var typeRules = []struct {
	printerType Type
	keywords    []string
}{
	{TypeThermal, []string{
		"thermal", "receipt", "tm-t", "tm-m", "tm-u", "tm-p", "tsp",
		"rp-", "rongta", "epos", "pos-80", "pos-58", "mpop", "sunmi",
	}},
	{TypeLabel, []string{
		"label", "zebra", "zpl", "zd4", "zd6", "gk420", "gx430", "tlp",
		"dymo", "labelwriter", "brother ql", "ql-", "pt-", "godex",
	}},
	{TypeLaser, []string{
		"laser", "laserjet", "brother hl", "brother mfc", "lexmark",
		"kyocera", "xerox phaser",
	}},
	{TypeDotMatrix, []string{
		"dot matrix", "dotmatrix", "lx-", "fx-", "lq-", "microline", "oki ml",
	}},
	{TypeInkjet, []string{
		"inkjet", "deskjet", "officejet", "envy", "pixma", "stylus",
		"ecotank", "workforce",
	}},
}

var macTailRe = regexp.MustCompile(`(?i)[\[(]?[0-9a-f]{2}([:-]?[0-9a-f]{2}){2,5}[\])]?$`)

// ClassifyType derives the printer type from a case-insensitive keyword match
// over name, display name and driver. First match wins; generic otherwise.
func ClassifyType(systemName, displayName, driver string) Type {
	haystack := strings.ToLower(systemName + " " + displayName + " " + driver)
	for _, rule := range typeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.printerType
			}
		}
	}
	return TypeGeneric
}

// DetectTransport resolves the physical link in order: port-name substrings,
// device-uri scheme, MAC-tail suffix on the name, wireless keywords.
func DetectTransport(portName, deviceURI, systemName string) Transport {
	port := strings.ToLower(portName)
	switch {
	case strings.Contains(port, "usb"):
		return TransportUSB
	case strings.Contains(port, "wsd") || strings.Contains(port, "ip_") ||
		strings.Contains(port, "tcp") || strings.Contains(port, "net"):
		return TransportNetwork
	case strings.Contains(port, "bth") || strings.Contains(port, "bluetooth"):
		return TransportBluetooth
	case strings.HasPrefix(port, "com"):
		return TransportSerial
	case strings.HasPrefix(port, "lpt"):
		return TransportParallel
	}

	if scheme, _, found := strings.Cut(deviceURI, ":"); found {
		switch strings.ToLower(scheme) {
		case "usb", "hp", "hpfax":
			return TransportUSB
		case "socket", "ipp", "ipps", "http", "https", "lpd", "dnssd", "smb":
			return TransportNetwork
		case "serial":
			return TransportSerial
		case "parallel":
			return TransportParallel
		case "bluetooth", "bth":
			return TransportBluetooth
		}
	}

	if macTailRe.MatchString(strings.TrimSpace(systemName)) {
		return TransportNetwork
	}

	name := strings.ToLower(systemName)
	if strings.Contains(name, "wifi") || strings.Contains(name, "wi-fi") ||
		strings.Contains(name, "wireless") || strings.Contains(name, "airprint") {
		return TransportNetwork
	}

	return TransportUnknown
}

// CapabilitiesFor derives capabilities from the classified type plus keywords.
// Color and duplex are forced off for thermal, label and dotmatrix devices.
func CapabilitiesFor(t Type, systemName, displayName, driver string) Capabilities {
	haystack := strings.ToLower(systemName + " " + displayName + " " + driver)

	switch t {
	case TypeThermal:
		width := 80.0
		sizes := []string{"80mm", "58mm"}
		if strings.Contains(haystack, "58") {
			width = 58
		}
		return Capabilities{
			PaperSizes:    sizes,
			MaxWidthMM:    width,
			HasCutter:     !strings.Contains(haystack, "no cutter"),
			HasCashDrawer: true,
		}
	case TypeLabel:
		width := 62.0
		if strings.Contains(haystack, "zebra") || strings.Contains(haystack, "zpl") {
			width = 104
		}
		return Capabilities{
			PaperSizes: []string{"Label", "Continuous"},
			MaxWidthMM: width,
		}
	case TypeDotMatrix:
		return Capabilities{
			PaperSizes: []string{"A4", "Letter"},
			MaxWidthMM: 210,
		}
	default:
		return Capabilities{
			Color:      t == TypeInkjet || strings.Contains(haystack, "color"),
			Duplex:     t == TypeLaser || strings.Contains(haystack, "duplex"),
			PaperSizes: []string{"A4", "Letter"},
			MaxWidthMM: 210,
		}
	}
}
