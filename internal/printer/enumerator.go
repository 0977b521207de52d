package printer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var ErrEnumeration = errors.New("printer enumeration failed")

// rawPrinter is what the platform source reports before classification.
type rawPrinter struct {
	Name      string
	Driver    string
	PortName  string
	DeviceURI string
	Location  string
	Comment   string
	Status    string
	IsDefault bool
}

type platformSource interface {
	list(ctx context.Context) ([]rawPrinter, error)
}

type Enumerator struct {
	source platformSource
	log    *logrus.Entry
}

func NewEnumerator(log *logrus.Logger) *Enumerator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Enumerator{
		source: newPlatformSource(),
		log:    log.WithField("component", "printer"),
	}
}

// Enumerate snapshots the printers the OS knows about. The result is a pure
// mapping of platform records; an empty list is legal.
func (e *Enumerator) Enumerate(ctx context.Context) ([]Descriptor, error) {
	raws, err := e.source.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	descs := make([]Descriptor, 0, len(raws))
	for _, raw := range raws {
		descs = append(descs, fromRaw(raw))
	}
	e.log.WithField("count", len(descs)).Debug("enumerated printers")
	return descs, nil
}

func fromRaw(raw rawPrinter) Descriptor {
	display := displayName(raw)
	t := ClassifyType(raw.Name, display, raw.Driver)
	return Descriptor{
		SystemName:   raw.Name,
		DisplayName:  display,
		Type:         t,
		Transport:    DetectTransport(raw.PortName, raw.DeviceURI, raw.Name),
		Capabilities: CapabilitiesFor(t, raw.Name, display, raw.Driver),
		Metadata: Metadata{
			IsDefault: raw.IsDefault,
			Status:    raw.Status,
			PortName:  portName(raw),
			Location:  raw.Location,
			Comment:   raw.Comment,
		},
	}
}

func displayName(raw rawPrinter) string {
	if raw.Comment != "" {
		return raw.Comment
	}
	return raw.Name
}

func portName(raw rawPrinter) string {
	if raw.PortName != "" {
		return raw.PortName
	}
	return raw.DeviceURI
}
